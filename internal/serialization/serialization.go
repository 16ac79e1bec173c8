// Package serialization implements the binary snapshot format for ISA
// models: a fixed header with magic bytes and a SHA-256 checksum, a JSON
// metadata section describing the model and its tensors, and a float32
// little-endian data section.
package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/subspace-ml/isa/internal/mat32"
)

// Format constants.
const (
	Magic         = "ISAM"
	FormatVersion = 1
	checksumSize  = sha256.Size
	prefixSize    = 4 + 4 + 4 + checksumSize // magic, version, header length, checksum
)

// Common errors.
var (
	ErrInvalidMagic       = errors.New("serialization: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("serialization: unsupported format version")
	ErrChecksumMismatch   = errors.New("serialization: checksum mismatch: file may be corrupted")
	ErrTruncated          = errors.New("serialization: truncated file")
	ErrBadTensor          = errors.New("serialization: tensor metadata out of bounds")
)

// Snapshot is the serializable model state.
type Snapshot struct {
	NumVisibles  int
	NumHiddens   int
	Gaussianity  []float32
	Subspaces    []SubspaceMeta
	A            *mat32.Matrix
	Basis        *mat32.Matrix
	HiddenStates *mat32.Matrix // optional
}

// SubspaceMeta describes one subspace prior.
type SubspaceMeta struct {
	Dim    int       `json:"dim"`
	Scales []float32 `json:"scales"`
}

type header struct {
	FormatVersion int            `json:"format_version"`
	NumVisibles   int            `json:"num_visibles"`
	NumHiddens    int            `json:"num_hiddens"`
	Gaussianity   []float32      `json:"gaussianity"`
	Subspaces     []SubspaceMeta `json:"subspaces"`
	Tensors       []tensorMeta   `json:"tensors"`
}

type tensorMeta struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// Write encodes the snapshot to w.
func Write(w io.Writer, snap *Snapshot) error {
	var data bytes.Buffer
	hdr := header{
		FormatVersion: FormatVersion,
		NumVisibles:   snap.NumVisibles,
		NumHiddens:    snap.NumHiddens,
		Gaussianity:   snap.Gaussianity,
		Subspaces:     snap.Subspaces,
	}

	appendTensor := func(name string, m *mat32.Matrix) {
		if m == nil {
			return
		}
		meta := tensorMeta{
			Name:   name,
			Rows:   m.Rows(),
			Cols:   m.Cols(),
			Offset: int64(data.Len()),
			Size:   int64(m.Size() * 4),
		}
		// Stored column-major regardless of in-memory order.
		stored := m.ToOrder(mat32.ColMajor)
		for _, v := range stored.Data() {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			data.Write(buf[:])
		}
		hdr.Tensors = append(hdr.Tensors, meta)
	}
	appendTensor("A", snap.A)
	appendTensor("basis", snap.Basis)
	appendTensor("hidden_states", snap.HiddenStates)

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("serialization: encoding header: %w", err)
	}

	sum := sha256.New()
	sum.Write(headerJSON)
	sum.Write(data.Bytes())

	prefix := make([]byte, 0, prefixSize)
	prefix = append(prefix, Magic...)
	prefix = binary.LittleEndian.AppendUint32(prefix, FormatVersion)
	prefix = binary.LittleEndian.AppendUint32(prefix, uint32(len(headerJSON)))
	prefix = append(prefix, sum.Sum(nil)...)

	for _, chunk := range [][]byte{prefix, headerJSON, data.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("serialization: %w", err)
		}
	}
	return nil
}

// Read decodes a snapshot from r, verifying magic, version and checksum
// before constructing any matrices.
func Read(r io.Reader) (*Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("serialization: %w", err)
	}
	if len(raw) < prefixSize {
		return nil, ErrTruncated
	}
	if string(raw[:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	headerLen := int(binary.LittleEndian.Uint32(raw[8:12]))
	if prefixSize+headerLen > len(raw) {
		return nil, ErrTruncated
	}
	var checksum [checksumSize]byte
	copy(checksum[:], raw[12:12+checksumSize])

	headerJSON := raw[prefixSize : prefixSize+headerLen]
	data := raw[prefixSize+headerLen:]

	if sha256.Sum256(append(append([]byte(nil), headerJSON...), data...)) != checksum {
		return nil, ErrChecksumMismatch
	}

	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, fmt.Errorf("serialization: decoding header: %w", err)
	}

	snap := &Snapshot{
		NumVisibles: hdr.NumVisibles,
		NumHiddens:  hdr.NumHiddens,
		Gaussianity: hdr.Gaussianity,
		Subspaces:   hdr.Subspaces,
	}
	for _, meta := range hdr.Tensors {
		if meta.Rows < 0 || meta.Cols < 0 || meta.Offset < 0 ||
			meta.Size != int64(meta.Rows*meta.Cols*4) ||
			meta.Offset+meta.Size > int64(len(data)) {
			return nil, fmt.Errorf("%w: %q", ErrBadTensor, meta.Name)
		}
		m := mat32.New(meta.Rows, meta.Cols)
		dst := m.Data()
		for i := range dst {
			bits := binary.LittleEndian.Uint32(data[meta.Offset+int64(i*4):])
			dst[i] = math.Float32frombits(bits)
		}
		switch meta.Name {
		case "A":
			snap.A = m
		case "basis":
			snap.Basis = m
		case "hidden_states":
			snap.HiddenStates = m
		default:
			return nil, fmt.Errorf("%w: unknown tensor %q", ErrBadTensor, meta.Name)
		}
	}
	return snap, nil
}
