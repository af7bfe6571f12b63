package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtools/stagecal/pkg/events"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": ping",
		"",
		"event:channel.put",
		`data:{"channel":"Focus","value":0.1,"ts":1}`,
		"",
		"event: drift.check",
		`data: {"row":1,`,
		`data: "col":2}`,
		"",
		"",
	}, "\n")

	out := make(chan events.Event, 4)
	require.NoError(t, readEvents(context.Background(), strings.NewReader(stream), out))
	close(out)

	var got []events.Event
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, events.ChannelPut, got[0].Name)
	assert.Equal(t, events.DriftCheck, got[1].Name)

	p, err := events.DecodeAs[events.DriftCheckEvent](got[1])
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Col)
}

func TestReadEvents_Unterminated(t *testing.T) {
	// an event is dispatched on the blank line that ends it; one cut off by
	// the end of the stream is dropped
	stream := "event:channel.put\ndata:{}\n\nevent:drift.check\ndata:{\"row\":1}\n"

	out := make(chan events.Event, 4)
	require.NoError(t, readEvents(context.Background(), strings.NewReader(stream), out))
	close(out)

	var got []events.Event
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, events.ChannelPut, got[0].Name)
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(r.Method))
		case "/fail":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.Client(), srv.URL)

	ret, err := c.Put("/ok", "1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, ret)

	_, err = c.Get("/fail")
	assert.ErrorContains(t, err, "got 500")

	_, err = c.Get("/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Send(http.MethodDelete, "/ok", "")
	assert.Error(t, err)
}

func TestSend_DaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Get("/version")
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}
