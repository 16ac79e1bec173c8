package serialization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subspace-ml/isa/internal/mat32"
)

func testSnapshot() *Snapshot {
	a := mat32.New(2, 4)
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			a.Set(i, j, float32(i)*10+float32(j)+0.25)
		}
	}
	states := mat32.New(4, 3)
	states.Set(3, 2, -1.5)

	return &Snapshot{
		NumVisibles: 2,
		NumHiddens:  4,
		Gaussianity: []float32{0, 0.25, 0.5, 1},
		Subspaces: []SubspaceMeta{
			{Dim: 2, Scales: []float32{0.5, 1, 2}},
			{Dim: 2, Scales: []float32{0.7, 1.4}},
		},
		A:            a,
		Basis:        a.Clone(),
		HiddenStates: states,
	}
}

func TestRoundTrip(t *testing.T) {
	snap := testSnapshot()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, snap.NumVisibles, got.NumVisibles)
	assert.Equal(t, snap.NumHiddens, got.NumHiddens)
	assert.Equal(t, snap.Gaussianity, got.Gaussianity)
	assert.Equal(t, snap.Subspaces, got.Subspaces)
	assert.True(t, mat32.Equal(snap.A, got.A))
	assert.True(t, mat32.Equal(snap.Basis, got.Basis))
	assert.True(t, mat32.Equal(snap.HiddenStates, got.HiddenStates))
}

func TestRoundTripWithoutHiddenStates(t *testing.T) {
	snap := testSnapshot()
	snap.HiddenStates = nil

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Nil(t, got.HiddenStates)
	assert.True(t, mat32.Equal(snap.A, got.A))
}

func TestRowMajorTensorsAreNormalized(t *testing.T) {
	snap := testSnapshot()
	snap.A = snap.A.ToOrder(mat32.RowMajor)
	snap.Basis = snap.A

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, mat32.Equal(snap.A, got.A), "element values survive the order change")
	assert.Equal(t, mat32.ColMajor, got.A.Order())
}

func TestCorruptedPayloadFailsChecksum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot()))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF
	_, err := Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot()))

	raw := buf.Bytes()
	copy(raw, "NOPE")
	_, err := Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot()))

	raw := buf.Bytes()
	raw[4] = 99
	_, err := Read(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testSnapshot()))

	_, err := Read(bytes.NewReader(buf.Bytes()[:10]))
	assert.ErrorIs(t, err, ErrTruncated)

	// Cutting inside the header is caught by the declared header length.
	_, err = Read(bytes.NewReader(buf.Bytes()[:50]))
	assert.ErrorIs(t, err, ErrTruncated)
}
