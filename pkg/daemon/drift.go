package daemon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/registration"
)

// driftMonitor runs the check mode against the backend and remembers the
// last centroid, so that slow drift of the sphere shows up between checks.
type driftMonitor struct {
	mu   sync.Mutex
	last *events.DriftCheckEvent

	// check is a test seam; it defaults to runCheck.
	check func(ctx context.Context, ch *hardware.Channels, c config.Config) (calibration.Result, error)
}

func newDriftMonitor() *driftMonitor {
	return &driftMonitor{check: runCheck}
}

func runCheck(ctx context.Context, ch *hardware.Channels, c config.Config) (calibration.Result, error) {
	det, err := hardware.NewDetector(ch, c.Detector())
	if err != nil {
		return calibration.Result{}, err
	}
	cfg := c.Calibration()
	// Unattended: check never moves anything that needs confirming.
	cfg.Ask = false
	engine, err := calibration.NewEngine(ch, det, &registration.PhaseCorrelator{}, cfg, nil)
	if err != nil {
		return calibration.Result{}, err
	}
	res := c.Result()
	if err := engine.Run(ctx, calibration.ModeCheck, &res); err != nil {
		return res, err
	}
	return res, nil
}

// Last returns the last successful check, or nil before the first one.
func (d *driftMonitor) Last() *events.DriftCheckEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	ev := *d.last
	return &ev
}

// Run performs one check and publishes the outcome.
func (d *driftMonitor) Run(ctx context.Context) error {
	ev := events.DriftCheckEvent{Ts: time.Now().Unix()}

	res, err := d.check(ctx, backend, conf)
	if err == nil && res.Centroid == nil {
		err = errors.New("check did not locate the sphere")
	}
	if err != nil {
		ev.Error = err.Error()
		logrus.WithError(err).Error("drift check failed")
		sseHub.Publish(events.DriftCheck, ev)
		return err
	}

	ev.Row, ev.Col = res.Centroid.Row, res.Centroid.Col

	d.mu.Lock()
	if d.last != nil {
		ev.Drift = math.Hypot(ev.Row-d.last.Row, ev.Col-d.last.Col)
	}
	d.last = &ev
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"row":   ev.Row,
		"col":   ev.Col,
		"drift": ev.Drift,
	}).Info("drift check done")
	sseHub.Publish(events.DriftCheck, ev)
	return nil
}

// preCheck makes sure the backend is usable before a scheduled check.
func preCheck() error {
	if backend == nil {
		return fmt.Errorf("%w: no backend", hardware.ErrMissingChannel)
	}
	return backend.Validate()
}
