package hardware

import (
	"fmt"
	"sort"
)

// Logical channel names. The gateway daemon serves channels under these names.
const (
	ChanRotation       = "RotationAngle"
	ChanSampleX        = "LateralX"
	ChanSampleY        = "LateralY"
	ChanSampleXCent    = "SphereCenterX"
	ChanSampleZCent    = "SphereCenterZ"
	ChanRoll           = "Roll"
	ChanPitch          = "Pitch"
	ChanFocus          = "Focus"
	ChanImagePixelSize = "PixelSize"

	ChanShutterOpen   = "ShutterOpen"
	ChanShutterClose  = "ShutterClose"
	ChanShutterStatus = "ShutterStatus"

	ChanCamManufacturer = "CamManufacturer"
	ChanCamModel        = "CamModel"
	ChanCamSerialNumber = "CamSerialNumber"
	ChanCamImageMode    = "CamImageMode"
	ChanCamTriggerMode  = "CamTriggerMode"
	ChanCamPixelFormat  = "CamPixelFormat"
	ChanCamAcquire      = "CamAcquire"
	ChanCamNumImages    = "CamNumImages"
	ChanCamSizeX        = "CamSizeX"
	ChanCamSizeY        = "CamSizeY"
	ChanCamAcquireTime  = "CamAcquireTime"
	ChanCamImage        = "CamImage"
)

// Stage holds the motion axes used by the calibration.
type Stage struct {
	// Rotation is the rotary stage angle in degrees.
	Rotation Channel[float64]
	// SampleX and SampleY move the whole rotary stage laterally and vertically (mm).
	SampleX Channel[float64]
	SampleY Channel[float64]
	// SampleXCent and SampleZCent move the sample on top of the rotary stage,
	// re-centering it on the rotation axis (mm).
	SampleXCent Channel[float64]
	SampleZCent Channel[float64]
	Roll        Channel[float64]
	Pitch       Channel[float64]
	Focus       Channel[float64]
	// ImagePixelSize publishes the measured pixel size (µm).
	ImagePixelSize Channel[float64]
}

// Shutter opens and closes the beam shutter.
type Shutter struct {
	Open   Channel[int]
	Close  Channel[int]
	Status Channel[int]
}

// Camera holds the area detector channels.
type Camera struct {
	Manufacturer Channel[string]
	Model        Channel[string]
	SerialNumber Channel[string]
	ImageMode    Channel[string]
	TriggerMode  Channel[string]
	PixelFormat  Channel[string]
	Acquire      Channel[int]
	NumImages    Channel[int]
	SizeX        Channel[int]
	SizeY        Channel[int]
	AcquireTime  Channel[float64]
	Image        ArrayChannel
}

// Channels is the full set of channels a calibration run needs.
type Channels struct {
	Stage   Stage
	Shutter Shutter
	Camera  Camera
}

// Floats returns the float valued channels keyed by logical name.
func (c *Channels) Floats() map[string]Channel[float64] {
	return map[string]Channel[float64]{
		ChanRotation:       c.Stage.Rotation,
		ChanSampleX:        c.Stage.SampleX,
		ChanSampleY:        c.Stage.SampleY,
		ChanSampleXCent:    c.Stage.SampleXCent,
		ChanSampleZCent:    c.Stage.SampleZCent,
		ChanRoll:           c.Stage.Roll,
		ChanPitch:          c.Stage.Pitch,
		ChanFocus:          c.Stage.Focus,
		ChanImagePixelSize: c.Stage.ImagePixelSize,
		ChanCamAcquireTime: c.Camera.AcquireTime,
	}
}

// Ints returns the integer valued channels keyed by logical name.
func (c *Channels) Ints() map[string]Channel[int] {
	return map[string]Channel[int]{
		ChanShutterOpen:   c.Shutter.Open,
		ChanShutterClose:  c.Shutter.Close,
		ChanShutterStatus: c.Shutter.Status,
		ChanCamAcquire:    c.Camera.Acquire,
		ChanCamNumImages:  c.Camera.NumImages,
		ChanCamSizeX:      c.Camera.SizeX,
		ChanCamSizeY:      c.Camera.SizeY,
	}
}

// Strings returns the string valued channels keyed by logical name.
func (c *Channels) Strings() map[string]Channel[string] {
	return map[string]Channel[string]{
		ChanCamManufacturer: c.Camera.Manufacturer,
		ChanCamModel:        c.Camera.Model,
		ChanCamSerialNumber: c.Camera.SerialNumber,
		ChanCamImageMode:    c.Camera.ImageMode,
		ChanCamTriggerMode:  c.Camera.TriggerMode,
		ChanCamPixelFormat:  c.Camera.PixelFormat,
	}
}

// Arrays returns the array channels keyed by logical name.
func (c *Channels) Arrays() map[string]ArrayChannel {
	return map[string]ArrayChannel{
		ChanCamImage: c.Camera.Image,
	}
}

// Validate reports every channel that is not wired.
func (c *Channels) Validate() error {
	var missing []string
	for name, ch := range c.Floats() {
		if ch == nil {
			missing = append(missing, name)
		}
	}
	for name, ch := range c.Ints() {
		if ch == nil {
			missing = append(missing, name)
		}
	}
	for name, ch := range c.Strings() {
		if ch == nil {
			missing = append(missing, name)
		}
	}
	for name, ch := range c.Arrays() {
		if ch == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %v", ErrMissingChannel, missing)
	}
	return nil
}
