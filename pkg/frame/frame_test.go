package frame

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(t *testing.T, rows, cols int, v float64) *Frame {
	t.Helper()
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	f, err := New(rows, cols, data)
	require.NoError(t, err)
	return f
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(2, 2, []float64{1, 2, 3})
	assert.Error(t, err)
	_, err = New(0, 2, nil)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	raw, err := New(1, 3, []float64{100, 550, 1000})
	require.NoError(t, err)
	dark := constant(t, 1, 3, 100)
	white, err := New(1, 3, []float64{1000, 1000, 100})
	require.NoError(t, err)

	n, err := Normalize(raw, dark, white)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, n.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, n.At(0, 1), 1e-12)
	// white == dark
	assert.Equal(t, 0.0, n.At(0, 2))
}

func TestNormalize_ShapeMismatch(t *testing.T) {
	raw := constant(t, 2, 2, 1)
	_, err := Normalize(raw, constant(t, 2, 3, 0), constant(t, 2, 2, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCenterOfMass(t *testing.T) {
	data := make([]float64, 5*7)
	// single bright sample at row 1, col 4 and another at row 3, col 6
	data[1*7+4] = 1
	data[3*7+6] = 1
	f, err := New(5, 7, data)
	require.NoError(t, err)

	p, err := f.CenterOfMass()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.Row, 1e-12)
	assert.InDelta(t, 5.0, p.Col, 1e-12)
}

func TestCenterOfMass_Empty(t *testing.T) {
	_, err := constant(t, 3, 3, 0).CenterOfMass()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAttenuation(t *testing.T) {
	f, err := New(1, 3, []float64{1.2, 1, 0.25})
	require.NoError(t, err)
	a := f.Attenuation()
	assert.Equal(t, []float64{0, 0, 0.75}, a.Data())
}

func TestStdDev(t *testing.T) {
	f, err := New(1, 4, []float64{2, 4, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.4142135623730951, f.StdDev(), 1e-12)
	assert.Equal(t, 0.0, constant(t, 3, 3, 7).StdDev())
}

func TestTIFFRoundTrip(t *testing.T) {
	f, err := New(2, 3, []float64{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "frame.tiff")
	require.NoError(t, f.WriteTIFF(path))

	back, err := ReadTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Rows())
	assert.Equal(t, 3, back.Cols())
	assert.Equal(t, 0.0, back.At(0, 0))
	assert.Equal(t, 65535.0, back.At(1, 2))
	assert.InDelta(t, 13107.0, back.At(0, 1), 1)
}
