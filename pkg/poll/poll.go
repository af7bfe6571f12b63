// Package poll turns asynchronous hardware state changes into blocking waits.
package poll

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the delay between two reads of the monitored value.
	DefaultInterval = 10 * time.Millisecond
	// DefaultGrace is the delay before the first read, giving the value time to change.
	DefaultGrace = 10 * time.Millisecond
	// DefaultEpsilon is the tolerance used when comparing floating point values.
	DefaultEpsilon = 0.1
)

// Poller waits for a monitored value to reach a target.
type Poller struct {
	Interval time.Duration
	Grace    time.Duration
	Epsilon  float64
}

// DefaultPoller is used by WaitFor.
var DefaultPoller = &Poller{
	Interval: DefaultInterval,
	Grace:    DefaultGrace,
	Epsilon:  DefaultEpsilon,
}

// WaitFor polls read with DefaultPoller until it returns target, or timeout
// elapses. A negative timeout waits forever.
func WaitFor[T comparable](read func() (T, error), target T, timeout time.Duration) bool {
	return Wait(context.Background(), DefaultPoller, read, target, timeout)
}

// Wait is WaitFor with an explicit poller and a context. A cancelled context
// ends the wait with false.
func Wait[T comparable](ctx context.Context, p *Poller, read func() (T, error), target T, timeout time.Duration) bool {
	if p == nil {
		p = DefaultPoller
	}

	if !sleep(ctx, p.Grace) {
		return false
	}

	start := time.Now()
	for {
		cur, err := read()
		if err != nil {
			logrus.WithError(err).Debug("poll read failed")
		} else if p.matches(cur, target) {
			return true
		}

		if timeout >= 0 && time.Since(start) >= timeout {
			logrus.Error("DROPPED IMAGES")
			logrus.WithFields(logrus.Fields{
				"target":  target,
				"current": cur,
				"timeout": timeout,
			}).Error("wait reached max timeout")
			return false
		}

		if !sleep(ctx, p.Interval) {
			return false
		}
	}
}

func (p *Poller) matches(cur, target any) bool {
	switch c := cur.(type) {
	case float64:
		return math.Abs(c-target.(float64)) < p.Epsilon
	case float32:
		return math.Abs(float64(c-target.(float32))) < p.Epsilon
	}
	return cur == target
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
