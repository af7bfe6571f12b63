package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		OffAxisPosition:         ptr.To(0.1),
		CenterAngle1:            ptr.To(10.0),
		CenterAngle2:            ptr.To(45.0),
		AngleShift:              ptr.To(-0.7),
		SphereDiameter:          ptr.To(0.5),
		Gap:                     ptr.To(0.02),
		PitchOffset:             ptr.To(1.0),
		UpsampleFactor:          ptr.To(100),
		FocusStep:               ptr.To(0.05),
		FocusMinStep:            ptr.To(0.0001),
		Ask:                     ptr.To(true),
		MotionTimeoutSeconds:    ptr.To(600.0),
		ExposureTime:            ptr.To(0.1),
		Testing:                 ptr.To(false),
		ShutterOpenValue:        ptr.To(1),
		ShutterCloseValue:       ptr.To(1),
		ShutterStatusOpenValue:  ptr.To(1),
		ShutterStatusCloseValue: ptr.To(0),
		FlatFieldAxis:           ptr.To(hardware.FlatFieldHorizontal),
		SampleOutX:              ptr.To(3.0),
		SampleOutY:              ptr.To(3.0),
		// An empty schedule disables the daemon drift check.
		DriftCheckSchedule: ptr.To(""),
		LogsHome:           ptr.To(defaultLogsHome()),
	}
)

func defaultLogsHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "logs"
	}
	return filepath.Join(home, "logs")
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Nil fields take their default.
type RawFileConfig struct {
	// Results
	ImagePixelSize       *float64     `json:"imagePixelSize,omitempty"`
	RotationAxisLocation *float64     `json:"rotationAxisLocation,omitempty"`
	RotationAxisRoll     *float64     `json:"rotationAxisRoll,omitempty"`
	RotationAxisPitch    *float64     `json:"rotationAxisPitch,omitempty"`
	RotationAxisX        *float64     `json:"rotationAxisX,omitempty"`
	RotationAxisY        *float64     `json:"rotationAxisY,omitempty"`
	FocusPosition        *float64     `json:"focusPosition,omitempty"`
	LastCentroid         *frame.Point `json:"lastCentroid,omitempty"`

	// Sphere
	OffAxisPosition      *float64 `json:"offAxisPosition,omitempty"`
	CenterAngle1         *float64 `json:"centerAngle1,omitempty"`
	CenterAngle2         *float64 `json:"centerAngle2,omitempty"`
	AngleShift           *float64 `json:"angleShift,omitempty"`
	SphereDiameter       *float64 `json:"sphereDiameter,omitempty"`
	Gap                  *float64 `json:"gap,omitempty"`
	PitchOffset          *float64 `json:"pitchOffset,omitempty"`
	UpsampleFactor       *int     `json:"upsampleFactor,omitempty"`
	FocusStep            *float64 `json:"focusStep,omitempty"`
	FocusMinStep         *float64 `json:"focusMinStep,omitempty"`
	Ask                  *bool    `json:"ask,omitempty"`
	MotionTimeoutSeconds *float64 `json:"motionTimeoutSeconds,omitempty"`

	// Detector and shutter
	ExposureTime            *float64 `json:"exposureTime,omitempty"`
	Testing                 *bool    `json:"testing,omitempty"`
	ShutterOpenValue        *int     `json:"shutterOpenValue,omitempty"`
	ShutterCloseValue       *int     `json:"shutterCloseValue,omitempty"`
	ShutterStatusOpenValue  *int     `json:"shutterStatusOpenValue,omitempty"`
	ShutterStatusCloseValue *int     `json:"shutterStatusCloseValue,omitempty"`

	// Sample motion. Without sampleInX/sampleInY the sample returns to where
	// it was before the flat field.
	FlatFieldAxis *string  `json:"flatFieldAxis,omitempty"`
	SampleInX     *float64 `json:"sampleInX,omitempty"`
	SampleOutX    *float64 `json:"sampleOutX,omitempty"`
	SampleInY     *float64 `json:"sampleInY,omitempty"`
	SampleOutY    *float64 `json:"sampleOutY,omitempty"`

	DriftCheckSchedule *string `json:"driftCheckSchedule,omitempty"`
	LogsHome           *string `json:"logsHome,omitempty"`
}

// DefaultRawFileConfig returns a config with every setting spelled out, as
// written by `stagecal init`.
func DefaultRawFileConfig() *RawFileConfig {
	c := *defaultFileConfig
	return &c
}

// or returns *v, or the default when v is nil.
func or[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) Calibration() calibration.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, d := f.raw(), defaultFileConfig

	return calibration.Config{
		OffAxisPosition: or(c.OffAxisPosition, d.OffAxisPosition),
		CenterAngle1:    or(c.CenterAngle1, d.CenterAngle1),
		CenterAngle2:    or(c.CenterAngle2, d.CenterAngle2),
		AngleShift:      or(c.AngleShift, d.AngleShift),
		SphereDiameter:  or(c.SphereDiameter, d.SphereDiameter),
		Gap:             or(c.Gap, d.Gap),
		PitchOffset:     or(c.PitchOffset, d.PitchOffset),
		Upsample:        or(c.UpsampleFactor, d.UpsampleFactor),
		FocusStep:       or(c.FocusStep, d.FocusStep),
		FocusMinStep:    or(c.FocusMinStep, d.FocusMinStep),
		Ask:             or(c.Ask, d.Ask),
		MotionTimeout:   time.Duration(or(c.MotionTimeoutSeconds, d.MotionTimeoutSeconds) * float64(time.Second)),
	}
}

func (f *File) Detector() hardware.DetectorConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, d := f.raw(), defaultFileConfig

	return hardware.DetectorConfig{
		ExposureTime:            or(c.ExposureTime, d.ExposureTime),
		Testing:                 or(c.Testing, d.Testing),
		ShutterOpenValue:        or(c.ShutterOpenValue, d.ShutterOpenValue),
		ShutterCloseValue:       or(c.ShutterCloseValue, d.ShutterCloseValue),
		ShutterStatusOpenValue:  or(c.ShutterStatusOpenValue, d.ShutterStatusOpenValue),
		ShutterStatusCloseValue: or(c.ShutterStatusCloseValue, d.ShutterStatusCloseValue),
		FlatFieldAxis:           or(c.FlatFieldAxis, d.FlatFieldAxis),
		SampleInX:               c.SampleInX,
		SampleOutX:              or(c.SampleOutX, d.SampleOutX),
		SampleInY:               c.SampleInY,
		SampleOutY:              or(c.SampleOutY, d.SampleOutY),
	}
}

func (f *File) Result() calibration.Result {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c := f.raw()

	return calibration.Result{
		PixelSize:            c.ImagePixelSize,
		AxisX:                ptr.Deref(c.RotationAxisX, 0),
		AxisY:                ptr.Deref(c.RotationAxisY, 0),
		RotationAxisLocation: c.RotationAxisLocation,
		Roll:                 c.RotationAxisRoll,
		Pitch:                c.RotationAxisPitch,
		Focus:                c.FocusPosition,
		Centroid:             c.LastCentroid,
	}
}

func (f *File) SetResult(r calibration.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.raw()

	c.ImagePixelSize = r.PixelSize
	c.RotationAxisX = ptr.To(r.AxisX)
	c.RotationAxisY = ptr.To(r.AxisY)
	c.RotationAxisLocation = r.RotationAxisLocation
	c.RotationAxisRoll = r.Roll
	c.RotationAxisPitch = r.Pitch
	c.FocusPosition = r.Focus
	c.LastCentroid = r.Centroid
}

func (f *File) ImagePixelSize() *float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.raw().ImagePixelSize
}

func (f *File) DriftCheckSchedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return or(f.raw().DriftCheckSchedule, defaultFileConfig.DriftCheckSchedule)
}

func (f *File) LogsHome() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return or(f.raw().LogsHome, defaultFileConfig.LogsHome)
}

func (f *File) SetAsk(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw().Ask = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if dir := filepath.Dir(f.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	cal := f.Calibration()
	det := f.Detector()
	res := f.Result()

	fields := logrus.Fields{
		"offAxisPosition": cal.OffAxisPosition,
		"centerAngle1":    cal.CenterAngle1,
		"centerAngle2":    cal.CenterAngle2,
		"angleShift":      cal.AngleShift,
		"upsampleFactor":  cal.Upsample,
		"ask":             cal.Ask,
		"exposureTime":    det.ExposureTime,
		"testing":         det.Testing,
		"flatFieldAxis":   det.FlatFieldAxis,
		"driftCheck":      f.DriftCheckSchedule(),
	}
	for name, v := range map[string]*float64{
		"imagePixelSize":       res.PixelSize,
		"rotationAxisLocation": res.RotationAxisLocation,
		"rotationAxisRoll":     res.Roll,
		"rotationAxisPitch":    res.Pitch,
		"focusPosition":        res.Focus,
	} {
		if v != nil {
			fields[name] = *v
		} else {
			fields[name] = "-"
		}
	}
	return fields
}
