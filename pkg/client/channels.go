package client

import (
	"github.com/beamtools/stagecal/pkg/hardware"
)

func remoteFloat(c *Client, name string) hardware.Channel[float64] {
	return &hardware.FuncChannel[float64]{
		ChannelName: name,
		GetFunc:     func() (float64, error) { return c.GetFloat(name) },
		PutFunc:     func(v float64) error { return c.PutFloat(name, v) },
	}
}

func remoteInt(c *Client, name string) hardware.Channel[int] {
	return &hardware.FuncChannel[int]{
		ChannelName: name,
		GetFunc:     func() (int, error) { return c.GetInt(name) },
		PutFunc:     func(v int) error { return c.PutInt(name, v) },
	}
}

func remoteString(c *Client, name string) hardware.Channel[string] {
	return &hardware.FuncChannel[string]{
		ChannelName: name,
		GetFunc:     func() (string, error) { return c.GetString(name) },
		PutFunc:     func(v string) error { return c.PutString(name, v) },
	}
}

// Channels returns a channel set whose every Get and Put goes through the
// daemon. Read-only channels fail on Put on the daemon side.
func (c *Client) Channels() *hardware.Channels {
	return &hardware.Channels{
		Stage: hardware.Stage{
			Rotation:       remoteFloat(c, hardware.ChanRotation),
			SampleX:        remoteFloat(c, hardware.ChanSampleX),
			SampleY:        remoteFloat(c, hardware.ChanSampleY),
			SampleXCent:    remoteFloat(c, hardware.ChanSampleXCent),
			SampleZCent:    remoteFloat(c, hardware.ChanSampleZCent),
			Roll:           remoteFloat(c, hardware.ChanRoll),
			Pitch:          remoteFloat(c, hardware.ChanPitch),
			Focus:          remoteFloat(c, hardware.ChanFocus),
			ImagePixelSize: remoteFloat(c, hardware.ChanImagePixelSize),
		},
		Shutter: hardware.Shutter{
			Open:   remoteInt(c, hardware.ChanShutterOpen),
			Close:  remoteInt(c, hardware.ChanShutterClose),
			Status: remoteInt(c, hardware.ChanShutterStatus),
		},
		Camera: hardware.Camera{
			Manufacturer: remoteString(c, hardware.ChanCamManufacturer),
			Model:        remoteString(c, hardware.ChanCamModel),
			SerialNumber: remoteString(c, hardware.ChanCamSerialNumber),
			ImageMode:    remoteString(c, hardware.ChanCamImageMode),
			TriggerMode:  remoteString(c, hardware.ChanCamTriggerMode),
			PixelFormat:  remoteString(c, hardware.ChanCamPixelFormat),
			Acquire:      remoteInt(c, hardware.ChanCamAcquire),
			NumImages:    remoteInt(c, hardware.ChanCamNumImages),
			SizeX:        remoteInt(c, hardware.ChanCamSizeX),
			SizeY:        remoteInt(c, hardware.ChanCamSizeY),
			AcquireTime:  remoteFloat(c, hardware.ChanCamAcquireTime),
			Image: &hardware.FuncArrayChannel{
				ChannelName: hardware.ChanCamImage,
				GetFunc: func(count int) ([]float64, error) {
					return c.GetArray(hardware.ChanCamImage, count)
				},
			},
		},
	}
}
