package calibration

import (
	"context"

	"github.com/sirupsen/logrus"
)

// pitch measures the tilt of the rotation axis along the beam by moving the
// sphere off axis along the beam and comparing its height half a turn apart.
func (e *Engine) pitch(ctx context.Context, ff flatField, res *Result) error {
	stage := e.ch.Stage

	logrus.Warn("adjusting pitch")
	logrus.WithField("offset", e.cfg.PitchOffset).Info("moving sphere along the beam axis")
	if err := e.moveBy(ctx, stage.SampleZCent, -e.cfg.PitchOffset); err != nil {
		return err
	}

	s0, err := e.acquireAt(ctx, ff, e.cfg.AngleShift)
	if err != nil {
		return err
	}
	s180, err := e.acquireAt(ctx, ff, 180+e.cfg.AngleShift)
	if err != nil {
		return err
	}
	c0, err := centroid(s0)
	if err != nil {
		return err
	}
	c180, err := centroid(s180)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"row0":   c0.Row,
		"col0":   c0.Col,
		"row180": c180.Row,
		"col180": c180.Col,
	}).Info("center of mass of the sphere at 0 and 180 deg")

	pitch := PitchError(c0, c180, *res.PixelSize)
	logrus.WithField("pitch", pitch).Warn("found pitch error")

	logrus.Info("moving sphere back along the beam axis")
	if err := e.moveBy(ctx, stage.SampleZCent, e.cfg.PitchOffset); err != nil {
		return err
	}
	logrus.WithField("delta", -pitch).Warn("change pitch")
	if err := e.moveBy(ctx, stage.Pitch, -pitch); err != nil {
		return err
	}
	res.Pitch = &pitch

	return e.check(ctx, ff, e.cfg.AngleShift, res)
}
