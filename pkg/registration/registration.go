// Package registration estimates sub-pixel displacements between frames.
package registration

import (
	"math"

	"github.com/beamtools/stagecal/pkg/frame"
)

// DefaultUpsample is the sub-pixel resolution used by the calibration
// procedures: displacements are resolved to 1/100 of a pixel.
const DefaultUpsample = 100

// Displacement is the offset of one frame's content relative to another.
type Displacement struct {
	Row      float64 `json:"row"`
	Col      float64 `json:"col"`
	Upsample int     `json:"upsample"`
}

// Norm returns the euclidean length of the displacement.
func (d Displacement) Norm() float64 {
	return math.Hypot(d.Row, d.Col)
}

// Neg returns the opposite displacement.
func (d Displacement) Neg() Displacement {
	return Displacement{Row: -d.Row, Col: -d.Col, Upsample: d.Upsample}
}

// Estimator finds the displacement of b's content relative to a, so that
// Estimate(a, b) is the opposite of Estimate(b, a). upsample sets the
// sub-pixel resolution: results are quantized to 1/upsample of a pixel.
type Estimator interface {
	Estimate(a, b *frame.Frame, upsample int) (Displacement, error)
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(a, b *frame.Frame, upsample int) (Displacement, error)

// Estimate calls fn.
func (fn EstimatorFunc) Estimate(a, b *frame.Frame, upsample int) (Displacement, error) {
	return fn(a, b, upsample)
}

// Quantize rounds v to the nearest multiple of 1/upsample.
func Quantize(v float64, upsample int) float64 {
	if upsample <= 1 {
		return math.Round(v)
	}
	u := float64(upsample)
	return math.Round(v*u) / u
}
