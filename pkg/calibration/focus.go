package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SharpnessFunc moves the focus axis to pos and returns the sharpness of the
// image acquired there. Higher is sharper.
type SharpnessFunc func(ctx context.Context, pos float64) (float64, error)

// FocusSearch climbs a single peaked sharpness curve starting from start.
//
// Every evaluation moves by step in the current direction. Once the last
// three evaluations are all below the best one seen since the last turn, the
// peak has been passed: the direction is reversed and the step halved (the
// first turn keeps the step since the initial direction is arbitrary). The
// search ends when the step drops below minStep and returns the position
// with the highest sharpness seen, and the number of evaluations.
func FocusSearch(ctx context.Context, start, step, minStep float64, sharpness SharpnessFunc) (best float64, evaluations int, err error) {
	if step <= 0 || minStep <= 0 {
		return start, 0, errors.New("focus steps must be positive")
	}

	var (
		pos       = start
		direction = 1.0
		turned    bool
		sweepMax  float64
		last      = newStdRing()
		bestVal   = -1.0
	)
	best = start

	for step > minStep {
		if err := ctx.Err(); err != nil {
			return best, evaluations, err
		}

		pos += step * direction
		v, err := sharpness(ctx, pos)
		if err != nil {
			return best, evaluations, err
		}
		evaluations++

		logrus.WithFields(logrus.Fields{
			"position": pos,
			"std":      v,
		}).Info("focus")

		if v > sweepMax {
			sweepMax = v
		}
		if v > bestVal {
			bestVal, best = v, pos
		}
		last.push(v)

		if last.allBelow(sweepMax) {
			direction = -direction
			if turned {
				step /= 2
			}
			turned = true
			last = newStdRing()
			sweepMax = 0
			logrus.WithField("step", step).Info("passed focus peak, changing direction")
		}
	}

	return best, evaluations, nil
}

// stdRing keeps the last three sharpness values.
type stdRing struct {
	v [3]float64
	n int
}

func newStdRing() *stdRing {
	// start above any 16-bit standard deviation so a fresh ring never
	// reports a passed peak
	return &stdRing{v: [3]float64{1 << 16, 1 << 16, 1 << 16}}
}

func (r *stdRing) push(v float64) {
	r.v[r.n%3] = v
	r.n++
}

func (r *stdRing) allBelow(max float64) bool {
	for _, v := range r.v {
		if v >= max {
			return false
		}
	}
	return true
}

// focus runs FocusSearch on the focus axis with the standard deviation of
// the raw frame as sharpness, then parks the axis at the sharpest position.
func (e *Engine) focus(ctx context.Context, res *Result) error {
	axis := e.ch.Stage.Focus

	start, err := axis.Get()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", axis.Name(), err)
	}

	sharpness := func(ctx context.Context, pos float64) (float64, error) {
		if err := e.moveTo(ctx, axis, pos); err != nil {
			return 0, err
		}
		f, err := e.det.TakeImage(ctx)
		if err != nil {
			return 0, err
		}
		return f.StdDev(), nil
	}

	best, n, err := FocusSearch(ctx, start, e.cfg.FocusStep, e.cfg.FocusMinStep, sharpness)
	if err != nil {
		return err
	}
	if err := e.moveTo(ctx, axis, best); err != nil {
		return err
	}
	res.Focus = &best

	logrus.WithFields(logrus.Fields{
		"position":    best,
		"evaluations": n,
	}).Warn("focusing done")
	return nil
}
