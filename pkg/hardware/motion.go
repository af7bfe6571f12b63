package hardware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/poll"
)

// DefaultMotionTimeout bounds a single stage move.
const DefaultMotionTimeout = 600 * time.Second

// MotionPoller confirms that a motor readback reached its setpoint. Its
// tolerance is tighter than the poll default since lateral moves are often
// well below a tenth of a millimeter. Move narrows it further for moves
// smaller than ten times the tolerance.
var MotionPoller = &poll.Poller{
	Interval: poll.DefaultInterval,
	Grace:    poll.DefaultGrace,
	Epsilon:  1e-3,
}

// minMotionEpsilon keeps the tolerance above float rounding of the readback.
const minMotionEpsilon = 1e-9

// motionPoller returns MotionPoller with its tolerance capped at a tenth of
// the move, so that the position before the move never counts as reached.
func motionPoller(start, target float64) *poll.Poller {
	p := *MotionPoller
	p.Epsilon = math.Max(math.Min(p.Epsilon, math.Abs(target-start)/10), minMotionEpsilon)
	return &p
}

// Move commands ch to target and blocks until the readback reaches it.
func Move(ctx context.Context, ch Channel[float64], target float64, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start, err := ch.Get()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ch.Name(), err)
	}

	logrus.WithFields(logrus.Fields{
		"channel": ch.Name(),
		"start":   start,
		"target":  target,
	}).Debug("moving")

	if err := ch.Put(target); err != nil {
		return fmt.Errorf("failed to move %s to %f: %w", ch.Name(), target, err)
	}

	if !poll.Wait(ctx, motionPoller(start, target), ch.Get, target, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s did not reach %f within %s: %w", ch.Name(), target, timeout, ErrMotionTimeout)
	}
	return nil
}

// MoveBy moves ch by delta relative to its current readback and returns the
// commanded absolute position.
func MoveBy(ctx context.Context, ch Channel[float64], delta float64, timeout time.Duration) (float64, error) {
	cur, err := ch.Get()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", ch.Name(), err)
	}
	target := cur + delta
	return target, Move(ctx, ch, target, timeout)
}
