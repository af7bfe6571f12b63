// Package hardware describes the beamline channels the calibration drives:
// stage motors, the shutter and the area detector.
package hardware

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	// ErrMissingChannel is returned when a required channel is not wired.
	ErrMissingChannel = errors.New("missing hardware channel")
	// ErrDetectorDown is returned when the detector does not identify itself.
	ErrDetectorDown = errors.New("detector is down")
	// ErrUnsupportedDetector is returned for detector models the tool cannot drive.
	ErrUnsupportedDetector = errors.New("detector model is not supported")
	// ErrUnsupportedPixelFormat is returned when frames use an unknown pixel format.
	ErrUnsupportedPixelFormat = errors.New("pixel format is not supported")
	// ErrMotionTimeout is returned when a motor does not reach its setpoint in time.
	ErrMotionTimeout = errors.New("motion timed out")
)

// Channel is a named process variable that can be read and written.
type Channel[T any] interface {
	Name() string
	Get() (T, error)
	Put(v T) error
}

// ArrayChannel is a read-only waveform, such as the detector image.
type ArrayChannel interface {
	Name() string
	GetArray(count int) ([]float64, error)
}

// FuncChannel implements Channel with callbacks.
type FuncChannel[T any] struct {
	ChannelName string
	GetFunc     func() (T, error)
	PutFunc     func(T) error
}

var _ Channel[float64] = &FuncChannel[float64]{}

// Name implements Channel.
func (c *FuncChannel[T]) Name() string { return c.ChannelName }

// Get implements Channel.
func (c *FuncChannel[T]) Get() (T, error) {
	v, err := c.GetFunc()
	if err != nil {
		return v, err
	}

	logrus.WithFields(logrus.Fields{
		"channel": c.ChannelName,
		"val":     v,
	}).Trace("channel get")

	return v, nil
}

// Put implements Channel.
func (c *FuncChannel[T]) Put(v T) error {
	logrus.WithFields(logrus.Fields{
		"channel": c.ChannelName,
		"val":     v,
	}).Trace("channel put")

	if c.PutFunc == nil {
		return errors.New("channel " + c.ChannelName + " is read-only")
	}
	return c.PutFunc(v)
}

// FuncArrayChannel implements ArrayChannel with a callback.
type FuncArrayChannel struct {
	ChannelName string
	GetFunc     func(count int) ([]float64, error)
}

// Name implements ArrayChannel.
func (c *FuncArrayChannel) Name() string { return c.ChannelName }

// GetArray implements ArrayChannel.
func (c *FuncArrayChannel) GetArray(count int) ([]float64, error) {
	return c.GetFunc(count)
}
