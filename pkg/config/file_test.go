package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/utils/ptr"
)

func TestFile_LoadMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, calibration.DefaultConfig(), f.Calibration())
	assert.Nil(t, f.ImagePixelSize())
	assert.Equal(t, "", f.DriftCheckSchedule())
}

func TestFile_LoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagecal.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, hardware.FlatFieldHorizontal, f.Detector().FlatFieldAxis)
}

func TestFile_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagecal.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := NewFile(path)
	assert.Error(t, err)
}

func TestFile_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagecal.json")
	body := `{"centerAngle2": 30, "ask": false, "testing": true, "flatFieldAxis": "both", "sampleInX": 0.25, "motionTimeoutSeconds": 1.5}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)

	cal := f.Calibration()
	assert.Equal(t, 30.0, cal.CenterAngle2)
	assert.Equal(t, 10.0, cal.CenterAngle1)
	assert.False(t, cal.Ask)
	assert.Equal(t, 1500*time.Millisecond, cal.MotionTimeout)

	det := f.Detector()
	assert.True(t, det.Testing)
	assert.Equal(t, hardware.FlatFieldBoth, det.FlatFieldAxis)
	assert.Equal(t, 3.0, det.SampleOutX)
	require.NotNil(t, det.SampleInX)
	assert.Equal(t, 0.25, *det.SampleInX)
	assert.Nil(t, det.SampleInY)
}

func TestFile_SaveResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stagecal.json")
	f, err := NewFile(path)
	require.NoError(t, err)

	res := calibration.Result{
		PixelSize:            ptr.To(1.2),
		AxisX:                -0.02,
		AxisY:                0.015,
		RotationAxisLocation: ptr.To(1224.5),
		Roll:                 ptr.To(0.3),
		Centroid:             &frame.Point{Row: 1024, Col: 1224.5},
	}
	f.SetResult(res)
	f.SetAsk(false)
	require.NoError(t, f.Save())

	loaded, err := NewFile(path)
	require.NoError(t, err)
	got := loaded.Result()
	assert.Equal(t, res, got)
	assert.Nil(t, got.Pitch)
	assert.False(t, loaded.Calibration().Ask)
}

func TestFile_DefaultRawFileConfig(t *testing.T) {
	raw := DefaultRawFileConfig()
	raw.CenterAngle1 = ptr.To(5.0)
	assert.Equal(t, 10.0, *defaultFileConfig.CenterAngle1)

	f := NewFileFromConfig(raw, filepath.Join(t.TempDir(), "stagecal.json"))
	assert.Equal(t, 5.0, f.Calibration().CenterAngle1)
	assert.NoError(t, f.Calibration().Validate())
}

func TestFile_LogrusFields(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{ImagePixelSize: ptr.To(1.2)}, "")
	fields := f.LogrusFields()
	assert.Equal(t, 1.2, fields["imagePixelSize"])
	assert.Equal(t, "-", fields["rotationAxisRoll"])
}
