// Package frame holds detector frames and the statistics the calibration
// procedures compute on them.
package frame

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrShapeMismatch is returned when frames of different sizes are combined.
	ErrShapeMismatch = errors.New("frame shapes do not match")
	// ErrEmpty is returned when a statistic is requested on a frame with no weight.
	ErrEmpty = errors.New("frame has no intensity")
)

// Frame is a rows x cols array of intensity samples. A Frame is not modified
// after it is constructed.
type Frame struct {
	m *mat.Dense
}

// Point is a sub-pixel position in frame coordinates.
type Point struct {
	Row float64 `json:"row"`
	Col float64 `json:"col"`
}

// New builds a frame from row-major data. data is used directly.
func New(rows, cols int, data []float64) (*Frame, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("frame data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Frame{m: mat.NewDense(rows, cols, data)}, nil
}

// FromDense wraps an existing matrix. m must not be modified afterwards.
func FromDense(m *mat.Dense) *Frame {
	return &Frame{m: m}
}

// Rows returns the number of rows.
func (f *Frame) Rows() int {
	r, _ := f.m.Dims()
	return r
}

// Cols returns the number of columns (the frame width).
func (f *Frame) Cols() int {
	_, c := f.m.Dims()
	return c
}

// At returns the sample at row r, column c.
func (f *Frame) At(r, c int) float64 {
	return f.m.At(r, c)
}

// Data returns a row-major copy of the samples.
func (f *Frame) Data() []float64 {
	rows, cols := f.m.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, f.m.RawRowView(r)...)
	}
	return out
}

// Normalize returns (raw - dark) / (white - dark). Samples where white equals
// dark are set to zero.
func Normalize(raw, dark, white *Frame) (*Frame, error) {
	rows, cols := raw.m.Dims()
	if dr, dc := dark.m.Dims(); dr != rows || dc != cols {
		return nil, fmt.Errorf("dark: %w", ErrShapeMismatch)
	}
	if wr, wc := white.m.Dims(); wr != rows || wc != cols {
		return nil, fmt.Errorf("white: %w", ErrShapeMismatch)
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(r, c int, v float64) float64 {
		d := dark.m.At(r, c)
		den := white.m.At(r, c) - d
		if den == 0 {
			return 0
		}
		return (v - d) / den
	}, raw.m)
	return FromDense(out), nil
}

// Attenuation returns 1 - f clamped at zero, turning a normalized
// transmission frame into a map where absorbing objects are bright.
func (f *Frame) Attenuation() *Frame {
	out := mat.NewDense(f.Rows(), f.Cols(), nil)
	out.Apply(func(_, _ int, v float64) float64 {
		if a := 1 - v; a > 0 {
			return a
		}
		return 0
	}, f.m)
	return FromDense(out)
}

// CenterOfMass returns the intensity weighted centroid of the frame.
func (f *Frame) CenterOfMass() (Point, error) {
	rows, cols := f.m.Dims()
	rowWeights := make([]float64, rows)
	colWeights := make([]float64, cols)
	for r := 0; r < rows; r++ {
		row := f.m.RawRowView(r)
		rowWeights[r] = floats.Sum(row)
		floats.Add(colWeights, row)
	}

	total := floats.Sum(rowWeights)
	if total == 0 {
		return Point{}, ErrEmpty
	}

	var p Point
	for r, w := range rowWeights {
		p.Row += float64(r) * w
	}
	for c, w := range colWeights {
		p.Col += float64(c) * w
	}
	p.Row /= total
	p.Col /= total
	return p, nil
}

// StdDev returns the population standard deviation of all samples, used as a
// sharpness measure.
func (f *Frame) StdDev() float64 {
	_, std := stat.PopMeanStdDev(f.Data(), nil)
	return std
}
