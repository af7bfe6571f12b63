package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/registration"
)

// Mode selects a calibration procedure.
type Mode string

const (
	ModeResolution Mode = "resolution"
	ModeFocus      Mode = "focus"
	ModeCenter     Mode = "center"
	ModeRoll       Mode = "roll"
	ModePitch      Mode = "pitch"
	// ModeCheck re-acquires the sphere at 0 deg and reports its centroid.
	ModeCheck Mode = "check"
)

// Modes lists every mode in the order they are usually run.
var Modes = []Mode{ModeResolution, ModeFocus, ModeCenter, ModeRoll, ModePitch, ModeCheck}

var (
	ErrPixelSizeUnknown = errors.New("detector pixel size is not determined, run resolution first")
	ErrDeclined         = errors.New("correction declined by operator")
	ErrNoDisplacement   = errors.New("frames show no displacement")
	ErrUnknownMode      = errors.New("unknown calibration mode")
)

// ParseMode returns the Mode named s.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string { return string(m) }

// NeedsPixelSize reports whether the mode can only run once the pixel size
// is known.
func (m Mode) NeedsPixelSize() bool {
	return m != ModeResolution
}

// Config holds the inputs of a calibration run. It is never modified by the
// engine.
type Config struct {
	// OffAxisPosition is the lateral move used to measure the pixel size (mm).
	OffAxisPosition float64
	// CenterAngle1 and CenterAngle2 are the rotation steps of the two center
	// passes (deg).
	CenterAngle1 float64
	CenterAngle2 float64
	// AngleShift compensates the zero point bias of the rotary stage for
	// roll, pitch and resolution (deg).
	AngleShift float64
	// SphereDiameter and Gap place the sphere next to the detector edge
	// when measuring roll (mm).
	SphereDiameter float64
	Gap            float64
	// PitchOffset moves the sphere along the beam when measuring pitch (mm).
	PitchOffset float64

	Upsample     int
	FocusStep    float64
	FocusMinStep float64

	// Ask gates center corrections behind the Confirmer.
	Ask bool

	MotionTimeout time.Duration
}

// DefaultConfig returns the settings used on the beamline.
func DefaultConfig() Config {
	return Config{
		OffAxisPosition: 0.1,
		CenterAngle1:    10,
		CenterAngle2:    45,
		AngleShift:      -0.7,
		SphereDiameter:  0.5,
		Gap:             0.02,
		PitchOffset:     1.0,
		Upsample:        registration.DefaultUpsample,
		FocusStep:       0.05,
		FocusMinStep:    0.0001,
		Ask:             true,
		MotionTimeout:   600 * time.Second,
	}
}

// Validate checks that the configuration describes a usable run.
func (c Config) Validate() error {
	if c.OffAxisPosition == 0 {
		return errors.New("off-axis position must not be zero")
	}
	for _, a := range []float64{c.CenterAngle1, c.CenterAngle2} {
		if a <= 0 || a > 90 {
			return fmt.Errorf("center angle %g is out of range (0, 90]", a)
		}
	}
	if c.SphereDiameter <= 0 {
		return errors.New("sphere diameter must be positive")
	}
	if c.Upsample < 1 {
		return fmt.Errorf("upsample factor %d must be at least 1", c.Upsample)
	}
	if c.FocusStep <= 0 || c.FocusMinStep <= 0 {
		return errors.New("focus steps must be positive")
	}
	if c.MotionTimeout == 0 {
		return errors.New("motion timeout must not be zero")
	}
	return nil
}

// Result holds what calibration runs measured. Nil fields are unknown.
type Result struct {
	PixelSize *float64 `json:"pixelSize,omitempty"` // µm/pixel
	// AxisX and AxisY are the offset of the sphere from the rotation axis
	// found by the last center pass (pixels).
	AxisX float64 `json:"axisX"`
	AxisY float64 `json:"axisY"`
	// RotationAxisLocation is the detector column of the rotation axis.
	RotationAxisLocation *float64 `json:"rotationAxisLocation,omitempty"`
	Roll                 *float64 `json:"roll,omitempty"`  // deg
	Pitch                *float64 `json:"pitch,omitempty"` // deg
	Focus                *float64 `json:"focus,omitempty"`
	// Centroid is the sphere position of the last verification frame.
	Centroid *frame.Point `json:"centroid,omitempty"`
}

// Proposal is a center correction awaiting confirmation.
type Proposal struct {
	Angle    float64     `json:"angle"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Centroid frame.Point `json:"centroid"`
	// Relative moves of the center axes and of the lateral axis (mm).
	DeltaXCent   float64 `json:"deltaXCent"`
	DeltaZCent   float64 `json:"deltaZCent"`
	DeltaSampleX float64 `json:"deltaSampleX"`
}

// Confirmer decides whether a proposed correction may be applied.
type Confirmer interface {
	Confirm(ctx context.Context, p Proposal) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Proposal) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, p Proposal) (bool, error) {
	return f(ctx, p)
}

// AlwaysConfirm accepts every proposal.
var AlwaysConfirm = ConfirmFunc(func(context.Context, Proposal) (bool, error) { return true, nil })
