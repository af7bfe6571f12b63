package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/daemon"
	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/registration"
	"github.com/beamtools/stagecal/pkg/version"
)

func newTestClient(t *testing.T) (*Client, *hardware.Simulator) {
	t.Helper()
	sim := hardware.NewSimulator(hardware.DefaultSimulatorConfig())
	conf := config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "stagecal.json"))
	srv := httptest.NewServer(daemon.NewHandler(sim.Channels(), conf))
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.Client(), srv.URL), sim
}

func TestClient_Info(t *testing.T) {
	c, _ := newTestClient(t)

	v, err := c.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)

	l, err := c.ListChannels()
	require.NoError(t, err)
	assert.Contains(t, l.Float, hardware.ChanFocus)

	st, err := c.GetDrift()
	require.NoError(t, err)
	assert.Nil(t, st.Last)
	assert.Error(t, c.SkipDrift())

	_, err = c.GetFloat("Nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_RemoteChannels(t *testing.T) {
	c, sim := newTestClient(t)
	ch := c.Channels()
	require.NoError(t, ch.Validate())

	require.NoError(t, hardware.Move(context.Background(), ch.Stage.Focus, 0.25, time.Second))
	assert.InDelta(t, 0.25, sim.Position(hardware.ChanFocus), 1e-12)

	model, err := ch.Camera.Model.Get()
	require.NoError(t, err)
	assert.Equal(t, hardware.SimulatedModel, model)
	assert.Error(t, ch.Camera.Model.Put("other"))
}

func TestClient_SubscribeEvents(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evs := c.SubscribeEvents(ctx)

	var got events.Event
	require.Eventually(t, func() bool {
		if err := c.PutFloat(hardware.ChanRoll, 0.1); err != nil {
			return false
		}
		select {
		case got = <-evs:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	p, err := events.DecodeAs[events.ChannelPutEvent](got)
	require.NoError(t, err)
	assert.Equal(t, hardware.ChanRoll, p.Channel)

	cancel()
	for range evs {
	}
}

// A full resolution run where every channel access crosses the gateway.
func TestClient_RemoteResolution(t *testing.T) {
	c, sim := newTestClient(t)
	ch := c.Channels()

	det, err := hardware.NewDetector(ch, hardware.DetectorConfig{
		ExposureTime:            0.1,
		ShutterOpenValue:        1,
		ShutterCloseValue:       1,
		ShutterStatusOpenValue:  1,
		ShutterStatusCloseValue: 0,
		SampleOutX:              3,
	})
	require.NoError(t, err)

	centroids := registration.EstimatorFunc(func(a, b *frame.Frame, upsample int) (registration.Displacement, error) {
		ca, err := a.Attenuation().CenterOfMass()
		if err != nil {
			return registration.Displacement{}, err
		}
		cb, err := b.Attenuation().CenterOfMass()
		if err != nil {
			return registration.Displacement{}, err
		}
		return registration.Displacement{Row: cb.Row - ca.Row, Col: cb.Col - ca.Col, Upsample: upsample}, nil
	})

	cfg := calibration.DefaultConfig()
	cfg.Ask = false
	engine, err := calibration.NewEngine(ch, det, centroids, cfg, nil)
	require.NoError(t, err)

	var res calibration.Result
	require.NoError(t, engine.Run(context.Background(), calibration.ModeResolution, &res))
	require.NotNil(t, res.PixelSize)
	assert.InDelta(t, 10, *res.PixelSize, 0.05)
	assert.InDelta(t, *res.PixelSize, sim.Position(hardware.ChanImagePixelSize), 1e-12)
}
