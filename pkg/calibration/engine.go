package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/registration"
)

// FrameAcquirer produces raw detector frames. hardware.Detector implements
// it.
type FrameAcquirer interface {
	Identify() (serial, model string, err error)
	Init(ctx context.Context) error
	TakeImage(ctx context.Context) (*frame.Frame, error)
	TakeDarkAndWhite(ctx context.Context) (dark, white *frame.Frame, err error)
}

// Engine runs calibration procedures. Runs are strictly sequential and an
// Engine must not be used by two goroutines at once: it assumes exclusive
// access to the stage.
type Engine struct {
	ch      *hardware.Channels
	det     FrameAcquirer
	est     registration.Estimator
	cfg     Config
	confirm Confirmer
}

// NewEngine returns an Engine. Every channel must be wired, and a Confirmer
// is required unless cfg.Ask is false.
func NewEngine(ch *hardware.Channels, det FrameAcquirer, est registration.Estimator, cfg Config, confirm Confirmer) (*Engine, error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: no channels", hardware.ErrMissingChannel)
	}
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	if det == nil || est == nil {
		return nil, errors.New("frame acquirer and shift estimator are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration config: %w", err)
	}
	if cfg.Ask && confirm == nil {
		return nil, errors.New("confirmation is enabled but no confirmer is set")
	}
	return &Engine{
		ch:      ch,
		det:     det,
		est:     est,
		cfg:     cfg,
		confirm: confirm,
	}, nil
}

// Config returns the configuration of the engine.
func (e *Engine) Config() Config {
	return e.cfg
}

// flatField is the dark and white pair used to normalize every frame of a
// run.
type flatField struct {
	dark, white *frame.Frame
}

// Run executes one calibration mode and records what it measured in res. Any
// error aborts the run; the stage is left where the failing step put it.
func (e *Engine) Run(ctx context.Context, mode Mode, res *Result) error {
	if res == nil {
		return errors.New("nil result")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	log := logrus.WithField("mode", mode)

	serial, model, err := e.det.Identify()
	if err != nil {
		log.WithError(err).Error("detector is not available")
		return err
	}
	log.WithFields(logrus.Fields{
		"serial": serial,
		"model":  model,
	}).Debug("detector identified")

	if mode.NeedsPixelSize() && res.PixelSize == nil {
		log.Error("detector pixel size is unknown, run resolution first")
		return ErrPixelSizeUnknown
	}

	if mode == ModeResolution {
		if err := e.det.Init(ctx); err != nil {
			return fmt.Errorf("failed to init detector: %w", err)
		}
	}

	dark, white, err := e.det.TakeDarkAndWhite(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire flat field: %w", err)
	}
	ff := flatField{dark: dark, white: white}

	log.Warn("calibration started")

	switch mode {
	case ModeResolution:
		err = e.resolution(ctx, ff, res)
	case ModeFocus:
		err = e.focus(ctx, res)
	case ModeCenter:
		err = e.center(ctx, ff, res)
	case ModeRoll:
		err = e.roll(ctx, ff, res)
		if err == nil {
			err = e.center(ctx, ff, res)
		}
	case ModePitch:
		err = e.pitch(ctx, ff, res)
		if err == nil {
			err = e.center(ctx, ff, res)
		}
	case ModeCheck:
		err = e.check(ctx, ff, 0, res)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			log.Warn("no motion")
		} else {
			log.WithError(err).Error("calibration failed")
		}
		return err
	}

	log.Warn("calibration done")
	return nil
}

// acquire takes a frame and normalizes it with the flat field.
func (e *Engine) acquire(ctx context.Context, ff flatField) (*frame.Frame, error) {
	raw, err := e.det.TakeImage(ctx)
	if err != nil {
		return nil, err
	}
	return frame.Normalize(raw, ff.dark, ff.white)
}

// acquireAt rotates to angle and acquires a normalized frame.
func (e *Engine) acquireAt(ctx context.Context, ff flatField, angle float64) (*frame.Frame, error) {
	if err := e.rotate(ctx, angle); err != nil {
		return nil, err
	}
	logrus.WithField("angle", angle).Info("acquire sphere")
	return e.acquire(ctx, ff)
}

func (e *Engine) rotate(ctx context.Context, angle float64) error {
	logrus.WithField("angle", angle).Info("moving rotary stage")
	return hardware.Move(ctx, e.ch.Stage.Rotation, angle, e.cfg.MotionTimeout)
}

func (e *Engine) moveTo(ctx context.Context, ch hardware.Channel[float64], target float64) error {
	return hardware.Move(ctx, ch, target, e.cfg.MotionTimeout)
}

func (e *Engine) moveBy(ctx context.Context, ch hardware.Channel[float64], delta float64) error {
	target, err := hardware.MoveBy(ctx, ch, delta, e.cfg.MotionTimeout)
	logrus.WithFields(logrus.Fields{
		"channel": ch.Name(),
		"delta":   delta,
		"target":  target,
	}).Info("moved")
	return err
}

// centroid locates the sphere: it absorbs, so the centroid is taken on the
// attenuation map rather than on the transmitted intensity.
func centroid(f *frame.Frame) (frame.Point, error) {
	p, err := f.Attenuation().CenterOfMass()
	if err != nil {
		return frame.Point{}, fmt.Errorf("failed to locate sphere: %w", err)
	}
	return p, nil
}

func (e *Engine) shift(a, b *frame.Frame) (registration.Displacement, error) {
	d, err := e.est.Estimate(a, b, e.cfg.Upsample)
	if err != nil {
		return registration.Displacement{}, fmt.Errorf("failed to estimate shift: %w", err)
	}
	return d, nil
}

// check acquires the sphere at angle and records its centroid.
func (e *Engine) check(ctx context.Context, ff flatField, angle float64, res *Result) error {
	f, err := e.acquireAt(ctx, ff, angle)
	if err != nil {
		return err
	}
	c, err := centroid(f)
	if err != nil {
		return err
	}
	res.Centroid = &c
	logrus.WithFields(logrus.Fields{
		"angle": angle,
		"row":   c.Row,
		"col":   c.Col,
	}).Warn("center of mass of the sphere")
	return nil
}
