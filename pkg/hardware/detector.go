package hardware

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/poll"
)

const (
	DetectorIdle    = 0
	DetectorAcquire = 1
)

// Flat field axes: the direction the sample is moved out of the beam for
// white field acquisition.
const (
	FlatFieldHorizontal = "horizontal"
	FlatFieldVertical   = "vertical"
	FlatFieldBoth       = "both"
)

// SupportedModels lists the detector models Detector knows how to drive.
var SupportedModels = []string{
	"Oryx ORX-10G-51S5M",
	SimulatedModel,
}

// DetectorConfig configures acquisition.
type DetectorConfig struct {
	ExposureTime float64 // seconds

	// Testing disables shutter control.
	Testing                 bool
	ShutterOpenValue        int
	ShutterCloseValue       int
	ShutterStatusOpenValue  int
	ShutterStatusCloseValue int

	FlatFieldAxis string
	// SampleInX and SampleInY, when set, are where the sample goes back to
	// after the white field. Otherwise it returns to its prior position.
	SampleInX  *float64
	SampleOutX float64
	SampleInY  *float64
	SampleOutY float64

	// DumpDir, when set, receives every acquired frame as a TIFF file.
	DumpDir string
}

// Detector acquires frames through the camera channels.
type Detector struct {
	ch  *Channels
	cfg DetectorConfig
	seq int
}

// NewDetector returns a Detector. All channels must be wired.
func NewDetector(ch *Channels, cfg DetectorConfig) (*Detector, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	if cfg.FlatFieldAxis == "" {
		cfg.FlatFieldAxis = FlatFieldHorizontal
	}
	switch cfg.FlatFieldAxis {
	case FlatFieldHorizontal, FlatFieldVertical, FlatFieldBoth:
	default:
		return nil, fmt.Errorf("unknown flat field axis %q", cfg.FlatFieldAxis)
	}
	return &Detector{ch: ch, cfg: cfg}, nil
}

// Identify reads the detector serial number and model. It fails when the
// detector does not answer or its model is not supported.
func (d *Detector) Identify() (serial, model string, err error) {
	serial, err = d.ch.Camera.SerialNumber.Get()
	if err != nil || serial == "" || serial == "Unknown" {
		if err == nil {
			err = ErrDetectorDown
		} else {
			err = fmt.Errorf("%w: %v", ErrDetectorDown, err)
		}
		return "", "", err
	}

	manufacturer, err := d.ch.Camera.Manufacturer.Get()
	if err != nil {
		logrus.WithError(err).Debug("failed to read detector manufacturer")
	}
	model, err = d.ch.Camera.Model.Get()
	if err != nil {
		return serial, "", fmt.Errorf("failed to read detector model: %w", err)
	}

	for _, m := range SupportedModels {
		if m == model {
			logrus.WithFields(logrus.Fields{
				"manufacturer": manufacturer,
				"model":        model,
				"serial":       serial,
			}).Info("detector is on")
			return serial, model, nil
		}
	}
	return serial, model, fmt.Errorf("%w: %s %s", ErrUnsupportedDetector, manufacturer, model)
}

// Init puts the detector into single image, free running mode.
func (d *Detector) Init(ctx context.Context) error {
	cam := d.ch.Camera
	logrus.Info("init detector")

	if err := d.setIdle(ctx); err != nil {
		return err
	}
	if err := cam.TriggerMode.Put("Off"); err != nil {
		return fmt.Errorf("failed to set trigger mode: %w", err)
	}
	if err := cam.ImageMode.Put("Single"); err != nil {
		return fmt.Errorf("failed to set image mode: %w", err)
	}
	if err := cam.AcquireTime.Put(d.cfg.ExposureTime); err != nil {
		return fmt.Errorf("failed to set exposure time: %w", err)
	}
	if err := cam.Acquire.Put(DetectorAcquire); err != nil {
		return fmt.Errorf("failed to start acquisition: %w", err)
	}
	// A single image acquisition may already be finished here, so this wait
	// only logs.
	poll.Wait(ctx, poll.DefaultPoller, cam.Acquire.Get, DetectorIdle, 2*time.Second)

	logrus.Info("init detector: done")
	return nil
}

func (d *Detector) setIdle(ctx context.Context) error {
	if err := d.ch.Camera.Acquire.Put(DetectorIdle); err != nil {
		return fmt.Errorf("failed to set detector idle: %w", err)
	}
	poll.Wait(ctx, poll.DefaultPoller, d.ch.Camera.Acquire.Get, DetectorIdle, 2*time.Second)
	return nil
}

// TakeImage acquires a single raw frame.
func (d *Detector) TakeImage(ctx context.Context) (*frame.Frame, error) {
	cam := d.ch.Camera

	if err := cam.NumImages.Put(1); err != nil {
		return nil, fmt.Errorf("failed to set number of images: %w", err)
	}
	if err := cam.TriggerMode.Put("Off"); err != nil {
		return nil, fmt.Errorf("failed to set trigger mode: %w", err)
	}

	waitTime := time.Duration(int(d.cfg.ExposureTime)+5) * time.Second
	if err := cam.Acquire.Put(DetectorAcquire); err != nil {
		return nil, fmt.Errorf("failed to start acquisition: %w", err)
	}
	if !poll.Wait(ctx, poll.DefaultPoller, cam.Acquire.Get, DetectorIdle, waitTime) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logrus.Warn("acquisition did not finish in time, forcing detector idle")
		if err := cam.Acquire.Put(DetectorIdle); err != nil {
			return nil, fmt.Errorf("failed to force detector idle: %w", err)
		}
	}

	cols, err := cam.SizeX.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read image width: %w", err)
	}
	rows, err := cam.SizeY.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read image height: %w", err)
	}

	data, err := cam.Image.GetArray(rows * cols)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) < rows*cols {
		return nil, fmt.Errorf("short image read: got %d samples, want %d", len(data), rows*cols)
	}
	data = data[:rows*cols]

	format, err := cam.PixelFormat.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read pixel format: %w", err)
	}
	var bits float64
	switch format {
	case "Mono16":
		bits = 16
	case "Mono8":
		bits = 8
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, format)
	}
	mod := math.Pow(2, bits)
	for i, v := range data {
		data[i] = math.Mod(v, mod)
		if data[i] < 0 {
			data[i] += mod
		}
	}

	f, err := frame.New(rows, cols, data)
	if err != nil {
		return nil, err
	}

	d.dump(f)
	return f, nil
}

func (d *Detector) dump(f *frame.Frame) {
	if d.cfg.DumpDir == "" {
		return
	}
	d.seq++
	if err := os.MkdirAll(d.cfg.DumpDir, 0755); err != nil {
		logrus.WithError(err).Warn("failed to create frame dump directory")
		return
	}
	path := filepath.Join(d.cfg.DumpDir, fmt.Sprintf("frame_%04d.tiff", d.seq))
	if err := f.WriteTIFF(path); err != nil {
		logrus.WithError(err).Warn("failed to dump frame")
		return
	}
	logrus.WithField("path", path).Debug("frame dumped")
}

// TakeDarkAndWhite acquires a dark frame with the shutter closed and a white
// frame with the sample moved out of the beam. The sample is then moved in
// again: to the configured sample-in position if any, else to where it was,
// so earlier corrections of the lateral axes survive a flat field.
func (d *Detector) TakeDarkAndWhite(ctx context.Context) (dark, white *frame.Frame, err error) {
	inX, err := d.ch.Stage.SampleX.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sample x: %w", err)
	}
	inY, err := d.ch.Stage.SampleY.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sample y: %w", err)
	}
	if d.cfg.SampleInX != nil {
		inX = *d.cfg.SampleInX
	}
	if d.cfg.SampleInY != nil {
		inY = *d.cfg.SampleInY
	}

	if err := d.CloseShutter(ctx); err != nil {
		return nil, nil, err
	}
	logrus.Info("acquire dark")
	dark, err = d.TakeImage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire dark field: %w", err)
	}

	if err := d.OpenShutter(ctx); err != nil {
		return nil, nil, err
	}
	if err := d.MoveSampleOut(ctx); err != nil {
		return nil, nil, err
	}
	logrus.Info("acquire white")
	white, err = d.TakeImage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire white field: %w", err)
	}

	logrus.Info("move sample in")
	if err := d.moveSample(ctx, inX, inY); err != nil {
		return nil, nil, err
	}
	return dark, white, nil
}

// OpenShutter opens the beam shutter and waits for the status to confirm.
func (d *Detector) OpenShutter(ctx context.Context) error {
	if d.cfg.Testing {
		logrus.Warn("testing mode: shutters are deactivated")
		return nil
	}
	logrus.Info("open shutter")
	if err := d.ch.Shutter.Open.Put(d.cfg.ShutterOpenValue); err != nil {
		return fmt.Errorf("failed to open shutter: %w", err)
	}
	poll.Wait(ctx, poll.DefaultPoller, d.ch.Shutter.Status.Get, d.cfg.ShutterStatusOpenValue, -1)
	return ctx.Err()
}

// CloseShutter closes the beam shutter and waits for the status to confirm.
func (d *Detector) CloseShutter(ctx context.Context) error {
	if d.cfg.Testing {
		logrus.Warn("testing mode: shutters are deactivated")
		return nil
	}
	logrus.Info("close shutter")
	if err := d.ch.Shutter.Close.Put(d.cfg.ShutterCloseValue); err != nil {
		return fmt.Errorf("failed to close shutter: %w", err)
	}
	poll.Wait(ctx, poll.DefaultPoller, d.ch.Shutter.Status.Get, d.cfg.ShutterStatusCloseValue, -1)
	return ctx.Err()
}

// MoveSampleOut moves the sample out of the field of view along the flat
// field axis.
func (d *Detector) MoveSampleOut(ctx context.Context) error {
	return d.moveSample(ctx, d.cfg.SampleOutX, d.cfg.SampleOutY)
}

func (d *Detector) moveSample(ctx context.Context, x, y float64) error {
	axis := d.cfg.FlatFieldAxis
	if axis == FlatFieldHorizontal || axis == FlatFieldBoth {
		logrus.WithField("x", x).Info("move sample x")
		if err := Move(ctx, d.ch.Stage.SampleX, x, DefaultMotionTimeout); err != nil {
			return err
		}
	}
	if axis == FlatFieldVertical || axis == FlatFieldBoth {
		logrus.WithField("y", y).Info("move sample y")
		if err := Move(ctx, d.ch.Stage.SampleY, y, DefaultMotionTimeout); err != nil {
			return err
		}
	}
	return nil
}
