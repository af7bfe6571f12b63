package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ExposureTime:            0.1,
		ShutterOpenValue:        1,
		ShutterCloseValue:       1,
		ShutterStatusOpenValue:  1,
		ShutterStatusCloseValue: 0,
		FlatFieldAxis:           FlatFieldHorizontal,
		SampleOutX:              3,
		SampleOutY:              3,
	}
}

func TestChannels_Validate(t *testing.T) {
	var ch Channels
	err := ch.Validate()
	require.ErrorIs(t, err, ErrMissingChannel)
	assert.Contains(t, err.Error(), ChanRotation)
	assert.Contains(t, err.Error(), ChanCamImage)

	sim := NewSimulator(DefaultSimulatorConfig())
	assert.NoError(t, sim.Channels().Validate())

	partial := sim.Channels()
	partial.Stage.Pitch = nil
	err = partial.Validate()
	require.ErrorIs(t, err, ErrMissingChannel)
	assert.Contains(t, err.Error(), ChanPitch)
	assert.NotContains(t, err.Error(), ChanRoll)
}

func TestFuncChannel_ReadOnly(t *testing.T) {
	ch := &FuncChannel[int]{
		ChannelName: "status",
		GetFunc:     func() (int, error) { return 3, nil },
	}
	v, err := ch.Get()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Error(t, ch.Put(1))
}

func TestMove(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.MotorLag = 30 * time.Millisecond
	sim := NewSimulator(cfg)
	ch := sim.Channels()

	require.NoError(t, Move(context.Background(), ch.Stage.SampleX, 1.5, time.Second))
	assert.InDelta(t, 1.5, sim.Position(ChanSampleX), 1e-12)

	target, err := MoveBy(context.Background(), ch.Stage.SampleX, -0.25, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, target, 1e-12)
	assert.InDelta(t, 1.25, sim.Position(ChanSampleX), 1e-12)
}

func TestMove_WaitsForMotor(t *testing.T) {
	tests := []struct {
		name string
		step float64
	}{
		{name: "large", step: 0.05},
		{name: "below tolerance", step: 0.0005},
		{name: "focus floor", step: 0.000195},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimulatorConfig()
			cfg.MotorLag = 100 * time.Millisecond
			sim := NewSimulator(cfg)
			sim.SetPosition(ChanFocus, 0.05)

			begin := time.Now()
			_, err := MoveBy(context.Background(), sim.Channels().Stage.Focus, tt.step, time.Second)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, time.Since(begin), cfg.MotorLag)
			assert.InDelta(t, 0.05+tt.step, sim.Position(ChanFocus), 1e-12)
		})
	}
}

func TestMove_AlreadyThere(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.MotorLag = 100 * time.Millisecond
	sim := NewSimulator(cfg)
	sim.SetPosition(ChanSampleX, 0.5)

	require.NoError(t, Move(context.Background(), sim.Channels().Stage.SampleX, 0.5, time.Second))
	assert.InDelta(t, 0.5, sim.Position(ChanSampleX), 1e-12)
}

func TestMove_Timeout(t *testing.T) {
	stuck := &FuncChannel[float64]{
		ChannelName: "stuck",
		GetFunc:     func() (float64, error) { return 0, nil },
		PutFunc:     func(float64) error { return nil },
	}
	err := Move(context.Background(), stuck, 1, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrMotionTimeout)
}

func TestMove_PutError(t *testing.T) {
	broken := &FuncChannel[float64]{
		ChannelName: "broken",
		GetFunc:     func() (float64, error) { return 0, nil },
		PutFunc:     func(float64) error { return errors.New("limit switch") },
	}
	err := Move(context.Background(), broken, 1, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMotionTimeout)
}

func TestMove_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewSimulator(DefaultSimulatorConfig())
	err := Move(ctx, sim.Channels().Stage.Focus, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sim.Puts())
}

func TestDetector_Identify(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SimulatorConfig)
		wantErr error
	}{
		{name: "simulated", modify: func(*SimulatorConfig) {}},
		{name: "oryx", modify: func(c *SimulatorConfig) { c.Model = "Oryx ORX-10G-51S5M" }},
		{name: "no serial", modify: func(c *SimulatorConfig) { c.Serial = "" }, wantErr: ErrDetectorDown},
		{name: "unknown serial", modify: func(c *SimulatorConfig) { c.Serial = "Unknown" }, wantErr: ErrDetectorDown},
		{name: "unsupported", modify: func(c *SimulatorConfig) { c.Model = "Grasshopper3" }, wantErr: ErrUnsupportedDetector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimulatorConfig()
			tt.modify(&cfg)
			sim := NewSimulator(cfg)

			det, err := NewDetector(sim.Channels(), testDetectorConfig())
			require.NoError(t, err)

			serial, model, err := det.Identify()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cfg.Serial, serial)
			assert.Equal(t, cfg.Model, model)
		})
	}
}

func TestDetector_Identify_NoManufacturer(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	ch := sim.Channels()
	ch.Camera.Manufacturer = &FuncChannel[string]{
		ChannelName: ChanCamManufacturer,
		GetFunc:     func() (string, error) { return "", errors.New("no such record") },
	}
	det, err := NewDetector(ch, testDetectorConfig())
	require.NoError(t, err)

	// the manufacturer is informational only
	serial, model, err := det.Identify()
	require.NoError(t, err)
	assert.Equal(t, "SIM-0001", serial)
	assert.Equal(t, SimulatedModel, model)
}

func TestNewDetector_InvalidFlatFieldAxis(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	cfg := testDetectorConfig()
	cfg.FlatFieldAxis = "diagonal"
	_, err := NewDetector(sim.Channels(), cfg)
	assert.Error(t, err)
}

func TestDetector_Init(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	ch := sim.Channels()
	det, err := NewDetector(ch, testDetectorConfig())
	require.NoError(t, err)

	require.NoError(t, det.Init(context.Background()))

	mode, _ := ch.Camera.ImageMode.Get()
	trigger, _ := ch.Camera.TriggerMode.Get()
	acquire, _ := ch.Camera.Acquire.Get()
	assert.Equal(t, "Single", mode)
	assert.Equal(t, "Off", trigger)
	assert.Equal(t, DetectorIdle, acquire)
	assert.InDelta(t, 0.1, sim.Position(ChanCamAcquireTime), 1e-12)
}

func TestDetector_TakeImage_ShutterClosed(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	det, err := NewDetector(sim.Channels(), testDetectorConfig())
	require.NoError(t, err)

	f, err := det.TakeImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 240, f.Rows())
	assert.Equal(t, 320, f.Cols())
	for _, v := range f.Data() {
		require.InDelta(t, 100, v, 1e-9)
	}
}

func TestDetector_TakeImage_PixelFormat(t *testing.T) {
	tests := []struct {
		format  string
		dark    float64
		want    float64
		wantErr error
	}{
		{format: "Mono16", dark: 70000, want: 70000 - 65536},
		{format: "Mono8", dark: 300, want: 44},
		{format: "RGB8", dark: 10, wantErr: ErrUnsupportedPixelFormat},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := DefaultSimulatorConfig()
			cfg.PixelFormat = tt.format
			cfg.Dark = tt.dark
			sim := NewSimulator(cfg)
			det, err := NewDetector(sim.Channels(), testDetectorConfig())
			require.NoError(t, err)

			f, err := det.TakeImage(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, f.At(0, 0), 1e-9)
		})
	}
}

func TestDetector_TakeDarkAndWhite(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	sim.SetPosition(ChanSampleX, 0.3)
	det, err := NewDetector(sim.Channels(), testDetectorConfig())
	require.NoError(t, err)

	dark, white, err := det.TakeDarkAndWhite(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 100, dark.At(120, 160), 1e-9)
	for _, v := range white.Data() {
		require.InDelta(t, 4000, v, 1e-6)
	}
	// the lateral position is restored, not reset to the configured sample-in
	assert.InDelta(t, 0.3, sim.Position(ChanSampleX), 1e-12)

	// the shutter is left open for the following acquisitions
	status, _ := sim.Channels().Shutter.Status.Get()
	assert.Equal(t, 1, status)
}

func TestDetector_TakeDarkAndWhite_SampleIn(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	sim.SetPosition(ChanSampleX, 0.3)
	cfg := testDetectorConfig()
	cfg.FlatFieldAxis = FlatFieldBoth
	inX := -0.1
	cfg.SampleInX = &inX
	det, err := NewDetector(sim.Channels(), cfg)
	require.NoError(t, err)

	_, _, err = det.TakeDarkAndWhite(context.Background())
	require.NoError(t, err)

	// x goes to the configured sample-in position, y has none and returns
	// to where it was
	assert.InDelta(t, -0.1, sim.Position(ChanSampleX), 1e-12)
	assert.InDelta(t, 0, sim.Position(ChanSampleY), 1e-12)
}

func TestDetector_TestingSkipsShutter(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	cfg := testDetectorConfig()
	cfg.Testing = true
	det, err := NewDetector(sim.Channels(), cfg)
	require.NoError(t, err)

	require.NoError(t, det.OpenShutter(context.Background()))
	require.NoError(t, det.CloseShutter(context.Background()))
	assert.Equal(t, 0, sim.Puts())
}

func TestDetector_Dump(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	cfg := testDetectorConfig()
	cfg.DumpDir = filepath.Join(t.TempDir(), "frames")
	det, err := NewDetector(sim.Channels(), cfg)
	require.NoError(t, err)

	_, err = det.TakeImage(context.Background())
	require.NoError(t, err)
	_, err = det.TakeImage(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"frame_0001.tiff", "frame_0002.tiff"} {
		_, err := os.Stat(filepath.Join(cfg.DumpDir, name))
		assert.NoError(t, err, name)
	}
}
