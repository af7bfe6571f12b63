package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SimulatedModel is the camera model reported by the Simulator.
const SimulatedModel = "Simulated Sphere Camera"

// SimulatorConfig describes the simulated beamline. Biases are the hidden
// misalignments a calibration run is expected to find.
type SimulatorConfig struct {
	Rows      int
	Cols      int
	PixelSize float64 // µm

	SphereDiameter float64 // mm
	Absorption     float64 // 0..1

	// AxisBias is the lateral offset of the rotation axis from the detector
	// midline at SampleX = 0 (mm).
	AxisBias float64
	// SphereBiasX and SphereBiasZ place the sphere off the rotation axis
	// when both center axes are at 0 (mm).
	SphereBiasX float64
	SphereBiasZ float64
	RollBias    float64 // deg
	PitchBias   float64 // deg
	// RollPivot is the height of the sphere above the roll pivot (mm). Rolling
	// the stage moves the rotation axis sideways by RollPivot·sin(roll).
	RollPivot float64
	// FocusBest is the focus position giving the sharpest image.
	FocusBest float64

	Dark        float64
	White       float64
	PixelFormat string

	Manufacturer string
	Model        string
	Serial       string

	// MotorLag delays the readback of every motion axis after a Put.
	MotorLag time.Duration
}

// DefaultSimulatorConfig returns a 320x240 detector at 10 µm/pixel looking at
// a 0.5 mm sphere.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Rows:           240,
		Cols:           320,
		PixelSize:      10,
		SphereDiameter: 0.5,
		Absorption:     0.6,
		AxisBias:       0.25,
		SphereBiasX:    0.2,
		SphereBiasZ:    -0.15,
		RollBias:       0.5,
		PitchBias:      -0.3,
		RollPivot:      5,
		FocusBest:      0.137,
		Dark:           100,
		White:          4000,
		PixelFormat:    "Mono16",
		Manufacturer:   "Simulated",
		Model:          SimulatedModel,
		Serial:         "SIM-0001",
	}
}

type motor struct {
	from, to float64
	at       time.Time
	lag      bool
}

// Simulator is an in-memory stage and detector. The detector renders a soft
// edged absorbing sphere whose position follows the stage axes and whose edge
// sharpness follows the focus axis. It is safe for concurrent use.
type Simulator struct {
	cfg SimulatorConfig

	mu          sync.Mutex
	motors      map[string]*motor
	strs        map[string]string
	shutterOpen bool
	acquire     int
	numImages   int
	image       []float64
	puts        int
}

// NewSimulator returns a Simulator with every axis at 0 and the shutter
// closed.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		motors: make(map[string]*motor),
		strs: map[string]string{
			ChanCamImageMode:   "Continuous",
			ChanCamTriggerMode: "On",
		},
		numImages: 1,
	}
	for _, name := range []string{
		ChanRotation, ChanSampleX, ChanSampleY, ChanSampleXCent, ChanSampleZCent,
		ChanRoll, ChanPitch, ChanFocus,
	} {
		s.motors[name] = &motor{lag: true}
	}
	s.motors[ChanImagePixelSize] = &motor{}
	s.motors[ChanCamAcquireTime] = &motor{to: 0.1}
	return s
}

func (s *Simulator) pos(name string) float64 {
	m := s.motors[name]
	if m.lag && s.cfg.MotorLag > 0 && time.Since(m.at) < s.cfg.MotorLag {
		return m.from
	}
	return m.to
}

// Position returns the readback of a float channel.
func (s *Simulator) Position(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos(name)
}

// SetPosition moves a float channel without counting it as a Put.
func (s *Simulator) SetPosition(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motors[name] = &motor{from: v, to: v, lag: s.motors[name].lag}
}

// Puts returns the number of writes issued through the channels.
func (s *Simulator) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *Simulator) floatChannel(name string) Channel[float64] {
	return &FuncChannel[float64]{
		ChannelName: name,
		GetFunc: func() (float64, error) {
			return s.Position(name), nil
		},
		PutFunc: func(v float64) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.puts++
			m := s.motors[name]
			s.motors[name] = &motor{from: s.pos(name), to: v, at: time.Now(), lag: m.lag}
			return nil
		},
	}
}

func (s *Simulator) intChannel(name string, get func() int, put func(int)) Channel[int] {
	ch := &FuncChannel[int]{
		ChannelName: name,
		GetFunc: func() (int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return get(), nil
		},
	}
	if put != nil {
		ch.PutFunc = func(v int) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.puts++
			put(v)
			return nil
		}
	}
	return ch
}

func (s *Simulator) stringChannel(name string, get func() string, writable bool) Channel[string] {
	ch := &FuncChannel[string]{
		ChannelName: name,
		GetFunc: func() (string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if get != nil {
				return get(), nil
			}
			return s.strs[name], nil
		},
	}
	if writable {
		ch.PutFunc = func(v string) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.puts++
			s.strs[name] = v
			return nil
		}
	}
	return ch
}

// Channels returns the full channel set backed by the simulator.
func (s *Simulator) Channels() *Channels {
	cfg := s.cfg
	constant := func(v string) func() string { return func() string { return v } }

	return &Channels{
		Stage: Stage{
			Rotation:       s.floatChannel(ChanRotation),
			SampleX:        s.floatChannel(ChanSampleX),
			SampleY:        s.floatChannel(ChanSampleY),
			SampleXCent:    s.floatChannel(ChanSampleXCent),
			SampleZCent:    s.floatChannel(ChanSampleZCent),
			Roll:           s.floatChannel(ChanRoll),
			Pitch:          s.floatChannel(ChanPitch),
			Focus:          s.floatChannel(ChanFocus),
			ImagePixelSize: s.floatChannel(ChanImagePixelSize),
		},
		Shutter: Shutter{
			Open: s.intChannel(ChanShutterOpen,
				func() int { return 0 },
				func(int) { s.shutterOpen = true }),
			Close: s.intChannel(ChanShutterClose,
				func() int { return 0 },
				func(int) { s.shutterOpen = false }),
			Status: s.intChannel(ChanShutterStatus,
				func() int {
					if s.shutterOpen {
						return 1
					}
					return 0
				}, nil),
		},
		Camera: Camera{
			Manufacturer: s.stringChannel(ChanCamManufacturer, constant(cfg.Manufacturer), false),
			Model:        s.stringChannel(ChanCamModel, constant(cfg.Model), false),
			SerialNumber: s.stringChannel(ChanCamSerialNumber, constant(cfg.Serial), false),
			ImageMode:    s.stringChannel(ChanCamImageMode, nil, true),
			TriggerMode:  s.stringChannel(ChanCamTriggerMode, nil, true),
			PixelFormat:  s.stringChannel(ChanCamPixelFormat, constant(cfg.PixelFormat), false),
			Acquire: s.intChannel(ChanCamAcquire,
				func() int { return s.acquire },
				func(v int) {
					// Frames are rendered at once, so the camera is idle again
					// before the caller starts waiting.
					if v == DetectorAcquire {
						s.image = s.render()
					}
					s.acquire = DetectorIdle
				}),
			NumImages: s.intChannel(ChanCamNumImages,
				func() int { return s.numImages },
				func(v int) { s.numImages = v }),
			SizeX:       s.intChannel(ChanCamSizeX, func() int { return cfg.Cols }, nil),
			SizeY:       s.intChannel(ChanCamSizeY, func() int { return cfg.Rows }, nil),
			AcquireTime: s.floatChannel(ChanCamAcquireTime),
			Image: &FuncArrayChannel{
				ChannelName: ChanCamImage,
				GetFunc:     s.getImage,
			},
		},
	}
}

func (s *Simulator) getImage(count int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cfg.Rows * s.cfg.Cols
	if count <= 0 || count > n {
		return nil, fmt.Errorf("invalid sample count %d, image has %d samples", count, n)
	}
	out := make([]float64, count)
	if s.image != nil {
		copy(out, s.image)
	}
	return out, nil
}

// SpherePosition returns where the sphere center is imaged for the current
// stage pose, in (row, col) pixels.
func (s *Simulator) SpherePosition() (row, col float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spherePosition()
}

func (s *Simulator) spherePosition() (row, col float64) {
	cfg := s.cfg
	pmm := cfg.PixelSize / 1000

	theta := s.pos(ChanRotation) * math.Pi / 180
	roll := (cfg.RollBias + s.pos(ChanRoll)) * math.Pi / 180
	pitch := (cfg.PitchBias + s.pos(ChanPitch)) * math.Pi / 180

	// Sphere offset from the rotation axis at 0 deg, lateral (u) and along
	// the beam (v), in pixels.
	u0 := -(s.pos(ChanSampleXCent) + cfg.SphereBiasX) / pmm
	v0 := -(s.pos(ChanSampleZCent) + cfg.SphereBiasZ) / pmm
	u := u0*math.Cos(theta) + v0*math.Sin(theta)
	v := -u0*math.Sin(theta) + v0*math.Cos(theta)

	axis := float64(cfg.Cols)/2 + (s.pos(ChanSampleX)+cfg.AxisBias+cfg.RollPivot*math.Sin(roll))/pmm
	col = axis + u
	row = float64(cfg.Rows)/2 - s.pos(ChanSampleY)/pmm - u*math.Sin(roll) - v*math.Sin(pitch)
	return row, col
}

func (s *Simulator) render() []float64 {
	cfg := s.cfg
	img := make([]float64, cfg.Rows*cfg.Cols)

	if !s.shutterOpen {
		for i := range img {
			img[i] = cfg.Dark
		}
		return img
	}

	row, col := s.spherePosition()
	radius := cfg.SphereDiameter / 2 / (cfg.PixelSize / 1000)
	width := 0.8 + 60*math.Abs(s.pos(ChanFocus)-cfg.FocusBest)

	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			d := math.Hypot(float64(r)-row, float64(c)-col)
			t := 1 - cfg.Absorption*0.5*(1-math.Tanh((d-radius)/width))
			img[r*cfg.Cols+c] = cfg.Dark + (cfg.White-cfg.Dark)*t
		}
	}

	logrus.WithFields(logrus.Fields{
		"row":   row,
		"col":   col,
		"width": width,
	}).Trace("simulated frame")

	return img
}
