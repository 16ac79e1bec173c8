package model

import (
	"fmt"
)

// Parameters bundles every per-call option recognized by the configurable
// model operations. A Parameters value is ephemeral: it is rebuilt from a
// map on every call and never stored on the model.
type Parameters struct {
	Verbosity      int
	TrainingMethod string // "sgd" or "mp"
	MaxIter        int
	TrainPrior     bool
	TrainBasis     bool
	Seed           int64
	Callback       func(iter int) bool

	SGD   SGDParameters
	GSM   GSMParameters
	Gibbs GibbsParameters
	AIS   AISParameters
	MP    MPParameters
}

// SGDParameters control the stochastic gradient basis updates.
type SGDParameters struct {
	MaxIter   int
	BatchSize int
	StepWidth float32
	Momentum  float32
}

// GSMParameters control the EM refits of the subspace priors.
type GSMParameters struct {
	MaxIter int
	Tol     float32
}

// GibbsParameters control posterior sampling in overcomplete models.
type GibbsParameters struct {
	IniIter   int
	NumIter   int
	Verbosity int
}

// AISParameters control the importance-sampling likelihood estimator.
type AISParameters struct {
	NumIter    int
	NumSamples int
	Verbosity  int
}

// MPParameters control matching pursuit.
type MPParameters struct {
	NumCoeff  int
	MaxIter   int
	StepWidth float32
}

// DefaultParameters returns the built-in defaults.
func DefaultParameters() Parameters {
	return Parameters{
		Verbosity:      0,
		TrainingMethod: "sgd",
		MaxIter:        10,
		TrainPrior:     true,
		TrainBasis:     true,
		Seed:           0,
		SGD: SGDParameters{
			MaxIter:   1,
			BatchSize: 100,
			StepWidth: 0.005,
			Momentum:  0.8,
		},
		GSM: GSMParameters{
			MaxIter: 10,
			Tol:     1e-5,
		},
		Gibbs: GibbsParameters{
			IniIter: 10,
			NumIter: 2,
		},
		AIS: AISParameters{
			NumIter:    100,
			NumSamples: 100,
		},
		MP: MPParameters{
			NumCoeff:  10,
			MaxIter:   50,
			StepWidth: 0.01,
		},
	}
}

// ToMap renders p as a nested option mapping, the same shape
// ParametersFromMap consumes.
func (p Parameters) ToMap() map[string]any {
	return map[string]any{
		"verbosity":       p.Verbosity,
		"training_method": p.TrainingMethod,
		"max_iter":        p.MaxIter,
		"train_prior":     p.TrainPrior,
		"train_basis":     p.TrainBasis,
		"seed":            p.Seed,
		"callback":        p.Callback,
		"sgd": map[string]any{
			"max_iter":   p.SGD.MaxIter,
			"batch_size": p.SGD.BatchSize,
			"step_width": p.SGD.StepWidth,
			"momentum":   p.SGD.Momentum,
		},
		"gsm": map[string]any{
			"max_iter": p.GSM.MaxIter,
			"tol":      p.GSM.Tol,
		},
		"gibbs": map[string]any{
			"ini_iter":  p.Gibbs.IniIter,
			"num_iter":  p.Gibbs.NumIter,
			"verbosity": p.Gibbs.Verbosity,
		},
		"ais": map[string]any{
			"num_iter":    p.AIS.NumIter,
			"num_samples": p.AIS.NumSamples,
			"verbosity":   p.AIS.Verbosity,
		},
		"mp": map[string]any{
			"num_coeff":  p.MP.NumCoeff,
			"max_iter":   p.MP.MaxIter,
			"step_width": p.MP.StepWidth,
		},
	}
}

// ParametersFromMap layers the given options over the defaults. Unknown
// option names are rejected at every nesting level; the input map is never
// mutated.
func ParametersFromMap(m map[string]any) (Parameters, error) {
	p := DefaultParameters()
	if m == nil {
		return p, nil
	}
	for key, val := range m {
		var err error
		switch key {
		case "verbosity":
			p.Verbosity, err = asInt(key, val)
		case "training_method":
			p.TrainingMethod, err = asString(key, val)
		case "max_iter":
			p.MaxIter, err = asInt(key, val)
		case "train_prior":
			p.TrainPrior, err = asBool(key, val)
		case "train_basis":
			p.TrainBasis, err = asBool(key, val)
		case "seed":
			var n int
			n, err = asInt(key, val)
			p.Seed = int64(n)
		case "callback":
			p.Callback, err = asCallback(key, val)
		case "sgd":
			err = mergeGroup(key, val, map[string]func(any) error{
				"max_iter":   setInt(key, &p.SGD.MaxIter),
				"batch_size": setInt(key, &p.SGD.BatchSize),
				"step_width": setFloat(key, &p.SGD.StepWidth),
				"momentum":   setFloat(key, &p.SGD.Momentum),
			})
		case "gsm":
			err = mergeGroup(key, val, map[string]func(any) error{
				"max_iter": setInt(key, &p.GSM.MaxIter),
				"tol":      setFloat(key, &p.GSM.Tol),
			})
		case "gibbs":
			err = mergeGroup(key, val, map[string]func(any) error{
				"ini_iter":  setInt(key, &p.Gibbs.IniIter),
				"num_iter":  setInt(key, &p.Gibbs.NumIter),
				"verbosity": setInt(key, &p.Gibbs.Verbosity),
			})
		case "ais":
			err = mergeGroup(key, val, map[string]func(any) error{
				"num_iter":    setInt(key, &p.AIS.NumIter),
				"num_samples": setInt(key, &p.AIS.NumSamples),
				"verbosity":   setInt(key, &p.AIS.Verbosity),
			})
		case "mp":
			err = mergeGroup(key, val, map[string]func(any) error{
				"num_coeff":  setInt(key, &p.MP.NumCoeff),
				"max_iter":   setInt(key, &p.MP.MaxIter),
				"step_width": setFloat(key, &p.MP.StepWidth),
			})
		default:
			return Parameters{}, fmt.Errorf("%w: %q", ErrUnknownOption, key)
		}
		if err != nil {
			return Parameters{}, err
		}
	}
	if err := p.validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// validate rejects recognized options whose values would crash an operation:
// iteration and sample counts must stay in range. Invalid configuration is a
// configuration error, never a panic downstream.
func (p Parameters) validate() error {
	for _, c := range []struct {
		name string
		val  int
		min  int
	}{
		{"max_iter", p.MaxIter, 0},
		{"sgd.max_iter", p.SGD.MaxIter, 0},
		{"sgd.batch_size", p.SGD.BatchSize, 0},
		{"gsm.max_iter", p.GSM.MaxIter, 0},
		{"gibbs.ini_iter", p.Gibbs.IniIter, 0},
		{"gibbs.num_iter", p.Gibbs.NumIter, 0},
		{"ais.num_iter", p.AIS.NumIter, 1},
		{"ais.num_samples", p.AIS.NumSamples, 1},
		{"mp.num_coeff", p.MP.NumCoeff, 0},
		{"mp.max_iter", p.MP.MaxIter, 0},
	} {
		if c.val < c.min {
			return fmt.Errorf("%w: %q must be at least %d, got %d",
				ErrOptionValue, c.name, c.min, c.val)
		}
	}
	return nil
}

// mergeGroup applies a nested option group, rejecting unknown member names.
func mergeGroup(group string, val any, setters map[string]func(any) error) error {
	nested, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %q must be a mapping, got %T", ErrOptionValue, group, val)
	}
	for key, v := range nested {
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOption, group+"."+key)
		}
		if err := set(v); err != nil {
			return err
		}
	}
	return nil
}

func setInt(group string, dst *int) func(any) error {
	return func(v any) error {
		n, err := asInt(group, v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(group string, dst *float32) func(any) error {
	return func(v any) error {
		f, err := asFloat(group, v)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case float32:
		if n == float32(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %q expects an integer, got %T", ErrOptionValue, key, v)
}

func asFloat(key string, v any) (float32, error) {
	switch f := v.(type) {
	case float32:
		return f, nil
	case float64:
		return float32(f), nil
	case int:
		return float32(f), nil
	}
	return 0, fmt.Errorf("%w: %q expects a number, got %T", ErrOptionValue, key, v)
}

func asBool(key string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("%w: %q expects a boolean, got %T", ErrOptionValue, key, v)
}

func asString(key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q expects a string, got %T", ErrOptionValue, key, v)
}

func asCallback(key string, v any) (func(int) bool, error) {
	if v == nil {
		return nil, nil
	}
	if cb, ok := v.(func(int) bool); ok {
		return cb, nil
	}
	return nil, fmt.Errorf("%w: %q expects a func(int) bool, got %T", ErrOptionValue, key, v)
}
