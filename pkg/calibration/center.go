package calibration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// center moves the sphere onto the rotation axis and the rotation axis onto
// the detector midline. It runs once per configured center angle; each pass
// starts from where the previous one left the stage and Result keeps the
// last estimate.
func (e *Engine) center(ctx context.Context, ff flatField, res *Result) error {
	pmm := *res.PixelSize / 1000

	logrus.Warn("adjusting center")
	for _, angle := range []float64{e.cfg.CenterAngle1, e.cfg.CenterAngle2} {
		log := logrus.WithField("angle", angle)
		log.Warn("take 3 spheres")

		s0, err := e.acquireAt(ctx, ff, 0)
		if err != nil {
			return err
		}
		s1, err := e.acquireAt(ctx, ff, angle)
		if err != nil {
			return err
		}
		s2, err := e.acquireAt(ctx, ff, 2*angle)
		if err != nil {
			return err
		}

		d0, err := e.shift(s0, s1)
		if err != nil {
			return err
		}
		d1, err := e.shift(s1, s2)
		if err != nil {
			return err
		}

		x, y := CenterOffset(d0.Col, d1.Col, angle)
		c0, err := centroid(s0)
		if err != nil {
			return err
		}
		res.AxisX, res.AxisY = x, y

		p := Proposal{
			Angle:        angle,
			X:            x,
			Y:            y,
			Centroid:     c0,
			DeltaXCent:   x * pmm,
			DeltaZCent:   y * pmm,
			DeltaSampleX: -(c0.Col - x - float64(s0.Cols())/2) * pmm,
		}
		log.WithFields(logrus.Fields{
			"shift0": d0.Col,
			"shift1": d1.Col,
			"x":      x,
			"y":      y,
		}).Info("position of the initial sphere relative to the rotation center")
		log.WithFields(logrus.Fields{
			"row": c0.Row,
			"col": c0.Col,
		}).Info("center of mass of the initial sphere")

		if e.cfg.Ask {
			ok, err := e.confirm.Confirm(ctx, p)
			if err != nil {
				return fmt.Errorf("confirmation failed: %w", err)
			}
			if !ok {
				return ErrDeclined
			}
		}

		if err := e.applyCenter(ctx, p); err != nil {
			return err
		}
		if err := e.check(ctx, ff, 0, res); err != nil {
			return err
		}
		// with the sphere on the axis, its centroid is the axis position
		loc := res.Centroid.Col
		res.RotationAxisLocation = &loc
	}
	return nil
}

func (e *Engine) applyCenter(ctx context.Context, p Proposal) error {
	stage := e.ch.Stage

	logrus.Info("moving sample top x to the rotation center")
	if err := e.moveBy(ctx, stage.SampleXCent, p.DeltaXCent); err != nil {
		return err
	}
	logrus.Info("moving sample top z to the rotation center")
	if err := e.moveBy(ctx, stage.SampleZCent, p.DeltaZCent); err != nil {
		return err
	}
	logrus.Info("moving rotation center to the detector center")
	return e.moveBy(ctx, stage.SampleX, p.DeltaSampleX)
}
