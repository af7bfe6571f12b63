package calibration

import (
	"context"

	"github.com/sirupsen/logrus"
)

// roll measures the tilt of the rotation axis in the detector plane with the
// sphere placed next to the detector edge, where a half turn moves it the
// farthest. It then validates the correction with a test roll of half the
// error before committing the rest.
func (e *Engine) roll(ctx context.Context, ff flatField, res *Result) error {
	stage := e.ch.Stage
	pmm := *res.PixelSize / 1000

	logrus.Warn("adjusting roll")
	if err := e.rotate(ctx, e.cfg.AngleShift); err != nil {
		return err
	}

	cols := ff.white.Cols()
	edge := float64(cols)/2*pmm - (e.cfg.SphereDiameter/2 + e.cfg.Gap)
	logrus.WithField("offset", edge).Info("moving sphere to the detector border")
	if err := e.moveBy(ctx, stage.SampleXCent, edge); err != nil {
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

	roll := RollError(c0, c180)
	logrus.WithField("roll", roll).Warn("found roll error")

	if err := e.rotate(ctx, e.cfg.AngleShift); err != nil {
		return err
	}
	logrus.Info("moving sphere back to the detector center")
	if err := e.moveBy(ctx, stage.SampleXCent, -edge); err != nil {
		return err
	}

	// Test half of the correction first and measure the lateral shift it
	// causes. tan(0) makes the prediction undefined, so a zero error skips
	// the test.
	test := roll / 2
	var predicted float64
	if test != 0 {
		before, err := e.acquire(ctx, ff)
		if err != nil {
			return err
		}
		logrus.WithField("test", test).Info("acquire sphere after testing roll change")
		if err := e.moveBy(ctx, stage.Roll, test); err != nil {
			return err
		}
		after, err := e.acquire(ctx, ff)
		if err != nil {
			return err
		}
		d, err := e.shift(before, after)
		if err != nil {
			return err
		}
		predicted = PredictedRollShift(d.Col, roll, test)
		logrus.WithFields(logrus.Fields{
			"measured":  d.Col,
			"predicted": predicted,
		}).Info("lateral shift of the test roll change and of the full roll change")
	}

	logrus.WithField("delta", roll-test).Warn("change roll")
	if err := e.moveBy(ctx, stage.Roll, roll-test); err != nil {
		return err
	}
	logrus.Info("moving sphere to the detector center")
	if err := e.moveBy(ctx, stage.SampleX, -predicted*pmm); err != nil {
		return err
	}
	res.Roll = &roll

	return e.check(ctx, ff, e.cfg.AngleShift, res)
}
