package registration

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/beamtools/stagecal/pkg/frame"
)

// PhaseCorrelator estimates displacements with OpenCV phase correlation.
type PhaseCorrelator struct {
	// Window applies a Hanning window before correlating, which suppresses
	// edge effects on frames whose borders differ.
	Window bool
}

var _ Estimator = &PhaseCorrelator{}

// Estimate implements Estimator.
func (p *PhaseCorrelator) Estimate(a, b *frame.Frame, upsample int) (Displacement, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return Displacement{}, fmt.Errorf("cannot register %dx%d against %dx%d: %w",
			a.Rows(), a.Cols(), b.Rows(), b.Cols(), frame.ErrShapeMismatch)
	}

	ma := toMat(a)
	defer ma.Close()
	mb := toMat(b)
	defer mb.Close()

	window := gocv.NewMat()
	defer window.Close()
	if p.Window {
		gocv.CreateHanningWindow(&window, image.Pt(a.Cols(), a.Rows()), gocv.MatTypeCV64F)
	}

	shift, response := gocv.PhaseCorrelate(ma, mb, window)
	d := Displacement{
		Row:      Quantize(float64(shift.Y), upsample),
		Col:      Quantize(float64(shift.X), upsample),
		Upsample: upsample,
	}

	logrus.WithFields(logrus.Fields{
		"row":      d.Row,
		"col":      d.Col,
		"response": response,
		"upsample": upsample,
	}).Debug("phase correlation")

	return d, nil
}

func toMat(f *frame.Frame) gocv.Mat {
	m := gocv.NewMatWithSize(f.Rows(), f.Cols(), gocv.MatTypeCV64F)
	for r := 0; r < f.Rows(); r++ {
		for c := 0; c < f.Cols(); c++ {
			m.SetDoubleAt(r, c, f.At(r, c))
		}
	}
	return m
}
