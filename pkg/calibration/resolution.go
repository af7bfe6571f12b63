package calibration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// resolution measures the pixel size by moving the sphere laterally by the
// off-axis distance. The lateral axis is moved back to where it started
// whether or not the measurement succeeds.
func (e *Engine) resolution(ctx context.Context, ff flatField, res *Result) (err error) {
	stage := e.ch.Stage

	if err := e.rotate(ctx, e.cfg.AngleShift); err != nil {
		return err
	}

	start, err := stage.SampleX.Get()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", stage.SampleX.Name(), err)
	}
	defer func() {
		logrus.WithField("x", start).Info("moving sample x back")
		if moveErr := e.moveTo(ctx, stage.SampleX, start); moveErr != nil && err == nil {
			err = moveErr
		}
	}()

	logrus.WithField("x", start).Info("acquire first image")
	a, err := e.acquire(ctx, ff)
	if err != nil {
		return err
	}

	second := start + e.cfg.OffAxisPosition
	if err := e.moveTo(ctx, stage.SampleX, second); err != nil {
		return err
	}
	logrus.WithField("x", second).Info("acquire second image")
	b, err := e.acquire(ctx, ff)
	if err != nil {
		return err
	}

	d, err := e.shift(a, b)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"x": d.Col,
		"y": d.Row,
	}).Info("shift")

	ps, err := PixelSize(e.cfg.OffAxisPosition, d)
	if err != nil {
		return err
	}
	res.PixelSize = &ps
	logrus.WithField("pixelSize", ps).Warn("found resolution (um/pixel)")

	if err := stage.ImagePixelSize.Put(ps); err != nil {
		return fmt.Errorf("failed to publish pixel size: %w", err)
	}
	return nil
}
