package registration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtools/stagecal/pkg/frame"
)

func blob(t *testing.T, rows, cols int, row, col, sigma float64) *frame.Frame {
	t.Helper()
	data := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d2 := (float64(r)-row)*(float64(r)-row) + (float64(c)-col)*(float64(c)-col)
			data[r*cols+c] = math.Exp(-d2 / (2 * sigma * sigma))
		}
	}
	f, err := frame.New(rows, cols, data)
	require.NoError(t, err)
	return f
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		v        float64
		upsample int
		want     float64
	}{
		{v: 1.234, upsample: 100, want: 1.23},
		{v: -1.236, upsample: 100, want: -1.24},
		{v: 1.26, upsample: 10, want: 1.3},
		{v: 1.6, upsample: 1, want: 2},
		{v: 1.4, upsample: 0, want: 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Quantize(tt.v, tt.upsample), 1e-12)
	}
}

func TestDisplacement_Norm(t *testing.T) {
	assert.InDelta(t, 5.0, Displacement{Row: 3, Col: -4}.Norm(), 1e-12)
	assert.Equal(t, Displacement{Row: -3, Col: 4, Upsample: 10}, Displacement{Row: 3, Col: -4, Upsample: 10}.Neg())
}

func TestPhaseCorrelator_Shift(t *testing.T) {
	a := blob(t, 64, 64, 30, 30, 4)
	b := blob(t, 64, 64, 33, 35, 4)

	p := &PhaseCorrelator{}
	d, err := p.Estimate(a, b, 10)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d.Row, 0.2)
	assert.InDelta(t, 5.0, d.Col, 0.2)
	assert.Equal(t, 10, d.Upsample)
}

func TestPhaseCorrelator_Symmetry(t *testing.T) {
	a := blob(t, 64, 80, 31.5, 40.2, 5)
	b := blob(t, 64, 80, 29.0, 44.7, 5)

	p := &PhaseCorrelator{}
	ab, err := p.Estimate(a, b, 100)
	require.NoError(t, err)
	ba, err := p.Estimate(b, a, 100)
	require.NoError(t, err)

	assert.InDelta(t, ab.Row, -ba.Row, 0.05)
	assert.InDelta(t, ab.Col, -ba.Col, 0.05)
}

func TestPhaseCorrelator_ShapeMismatch(t *testing.T) {
	p := &PhaseCorrelator{}
	_, err := p.Estimate(blob(t, 8, 8, 4, 4, 1), blob(t, 8, 9, 4, 4, 1), 10)
	assert.ErrorIs(t, err, frame.ErrShapeMismatch)
}
