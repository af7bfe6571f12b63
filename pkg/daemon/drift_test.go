package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/utils/ptr"
)

func TestDrift_Sequence(t *testing.T) {
	r, _ := setupTest(t, nil)
	points := []frame.Point{{Row: 100, Col: 200}, {Row: 103, Col: 204}}
	calls := 0
	drift.check = func(context.Context, *hardware.Channels, config.Config) (calibration.Result, error) {
		p := points[calls]
		calls++
		return calibration.Result{Centroid: &p}, nil
	}
	sub := sseHub.Subscribe()

	w := do(r, http.MethodPost, "/drift", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/drift", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/drift", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st DriftStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotNil(t, st.Last)
	assert.Equal(t, 204.0, st.Last.Col)
	assert.InDelta(t, 5, st.Last.Drift, 1e-12)
	assert.Nil(t, st.NextRun)

	first, err := events.DecodeAs[events.DriftCheckEvent](<-sub)
	require.NoError(t, err)
	assert.Zero(t, first.Drift)
}

func TestDrift_Failure(t *testing.T) {
	r, _ := setupTest(t, nil)
	drift.check = func(context.Context, *hardware.Channels, config.Config) (calibration.Result, error) {
		return calibration.Result{}, errors.New("beam lost")
	}
	sub := sseHub.Subscribe()

	w := do(r, http.MethodPost, "/drift", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Nil(t, drift.Last())

	ev, err := events.DecodeAs[events.DriftCheckEvent](<-sub)
	require.NoError(t, err)
	assert.Equal(t, "beam lost", ev.Error)
}

func TestRunCheck_PixelSizeUnknown(t *testing.T) {
	_, sim := setupTest(t, nil)
	_, err := runCheck(context.Background(), backend, conf)
	assert.ErrorIs(t, err, calibration.ErrPixelSizeUnknown)
	assert.Equal(t, 0, sim.Puts())
}

func TestRunCheck_Simulated(t *testing.T) {
	_, sim := setupTest(t, &config.RawFileConfig{ImagePixelSize: ptr.To(10.0)})
	res, err := runCheck(context.Background(), backend, conf)
	require.NoError(t, err)
	require.NotNil(t, res.Centroid)

	row, col := sim.SpherePosition()
	assert.InDelta(t, row, res.Centroid.Row, 0.5)
	assert.InDelta(t, col, res.Centroid.Col, 0.5)
}
