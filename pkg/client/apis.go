package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/beamtools/stagecal/internal/client"
	"github.com/beamtools/stagecal/pkg/events"
)

var (
	ErrDaemonNotRunning = client.ErrDaemonNotRunning
	ErrPermissionDenied = client.ErrPermissionDenied
	ErrNotFound         = client.ErrNotFound
)

// Client is the typed API of the stagecal gateway daemon.
type Client struct {
	*client.Client
}

// NewClient returns a Client connected to the daemon socket.
func NewClient(socketPath string) *Client {
	return &Client{Client: client.NewClient(socketPath)}
}

// NewClientWithHTTP returns a Client that reaches the daemon at baseURL
// through hc.
func NewClientWithHTTP(hc *http.Client, baseURL string) *Client {
	return &Client{Client: client.NewClientWithHTTP(hc, baseURL)}
}

// ChannelList lists the channels served by the daemon, per value type.
type ChannelList struct {
	Float  []string `json:"float"`
	Int    []string `json:"int"`
	String []string `json:"string"`
	Array  []string `json:"array"`
}

// DriftStatus is the drift check state of the daemon.
type DriftStatus struct {
	Schedule string                  `json:"schedule"`
	NextRun  *time.Time              `json:"nextRun,omitempty"`
	Last     *events.DriftCheckEvent `json:"last,omitempty"`
}

func decode[T any](ret string, what string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return decode[string](ret, "version")
}

func (c *Client) GetConfig() (map[string]any, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return decode[map[string]any](ret, "config")
}

func (c *Client) ListChannels() (*ChannelList, error) {
	ret, err := c.Get("/channels")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list channels")
	}
	l, err := decode[ChannelList](ret, "channel list")
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func channelPath(kind, name string) string {
	return fmt.Sprintf("/channels/%s/%s", kind, url.PathEscape(name))
}

func getValue[T any](c *Client, kind, name string) (T, error) {
	ret, err := c.Get(channelPath(kind, name))
	if err != nil {
		var zero T
		return zero, pkgerrors.Wrapf(err, "failed to get %s", name)
	}
	return decode[T](ret, name)
}

func putValue[T any](c *Client, kind, name string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := c.Put(channelPath(kind, name), string(b)); err != nil {
		return pkgerrors.Wrapf(err, "failed to put %s", name)
	}
	return nil
}

func (c *Client) GetFloat(name string) (float64, error) { return getValue[float64](c, "float", name) }
func (c *Client) PutFloat(name string, v float64) error { return putValue(c, "float", name, v) }
func (c *Client) GetInt(name string) (int, error)       { return getValue[int](c, "int", name) }
func (c *Client) PutInt(name string, v int) error       { return putValue(c, "int", name, v) }
func (c *Client) GetString(name string) (string, error) { return getValue[string](c, "string", name) }
func (c *Client) PutString(name string, v string) error { return putValue(c, "string", name, v) }

func (c *Client) GetArray(name string, count int) ([]float64, error) {
	ret, err := c.Get("/arrays/" + url.PathEscape(name) + "?count=" + strconv.Itoa(count))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get array %s", name)
	}
	return decode[[]float64](ret, name)
}

// ===== Drift check APIs =====

func (c *Client) GetDrift() (*DriftStatus, error) {
	ret, err := c.Get("/drift")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get drift status")
	}
	st, err := decode[DriftStatus](ret, "drift status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// RunDrift runs a drift check now and returns its outcome.
func (c *Client) RunDrift() (*events.DriftCheckEvent, error) {
	ret, err := c.Post("/drift", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to run drift check")
	}
	ev, err := decode[events.DriftCheckEvent](ret, "drift check")
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) SkipDrift() error {
	_, err := c.Post("/drift/skip", "")
	return pkgerrors.Wrapf(err, "failed to skip drift check")
}
