package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/version"
)

// ChannelList is the response of GET /channels.
type ChannelList struct {
	Float  []string `json:"float"`
	Int    []string `json:"int"`
	String []string `json:"string"`
	Array  []string `json:"array"`
}

// DriftStatus is the response of GET /drift.
type DriftStatus struct {
	Schedule string                  `json:"schedule"`
	NextRun  *time.Time              `json:"nextRun,omitempty"`
	Last     *events.DriftCheckEvent `json:"last,omitempty"`
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.LogrusFields())
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listChannels(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ChannelList{
		Float:  sortedKeys(backend.Floats()),
		Int:    sortedKeys(backend.Ints()),
		String: sortedKeys(backend.Strings()),
		Array:  sortedKeys(backend.Arrays()),
	})
}

// getChannel and putChannel serve one typed channel table.
func getChannel[T any](table func() map[string]hardware.Channel[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		ch, ok := table()[name]
		if !ok {
			abort(c, http.StatusNotFound, fmt.Errorf("%w: %s", hardware.ErrMissingChannel, name))
			return
		}
		v, err := ch.Get()
		if err != nil {
			logrus.WithError(err).WithField("channel", name).Error("get failed")
			abort(c, http.StatusInternalServerError, err)
			return
		}
		c.IndentedJSON(http.StatusOK, v)
	}
}

func putChannel[T any](table func() map[string]hardware.Channel[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		ch, ok := table()[name]
		if !ok {
			abort(c, http.StatusNotFound, fmt.Errorf("%w: %s", hardware.ErrMissingChannel, name))
			return
		}

		var v T
		if err := c.BindJSON(&v); err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			return
		}

		if err := ch.Put(v); err != nil {
			logrus.WithError(err).WithField("channel", name).Error("put failed")
			abort(c, http.StatusInternalServerError, err)
			return
		}

		logrus.WithFields(logrus.Fields{
			"channel": name,
			"value":   v,
		}).Debug("put")
		sseHub.Publish(events.ChannelPut, events.ChannelPutEvent{
			Channel: name,
			Value:   v,
			Ts:      time.Now().Unix(),
		})

		c.IndentedJSON(http.StatusCreated, "ok")
	}
}

func getArray(c *gin.Context) {
	name := c.Param("name")
	ch, ok := backend.Arrays()[name]
	if !ok {
		abort(c, http.StatusNotFound, fmt.Errorf("%w: %s", hardware.ErrMissingChannel, name))
		return
	}
	count, err := strconv.Atoi(c.Query("count"))
	if err != nil || count <= 0 {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid count %q", c.Query("count")))
		return
	}
	data, err := ch.GetArray(count)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	// Images are large, skip indentation.
	c.JSON(http.StatusOK, data)
}

func getDrift(c *gin.Context) {
	st := DriftStatus{
		Schedule: conf.DriftCheckSchedule(),
		Last:     drift.Last(),
	}
	if scheduler != nil {
		if next, running := scheduler.Status(); running && !next.IsZero() {
			st.NextRun = &next
		}
	}
	c.IndentedJSON(http.StatusOK, st)
}

func runDrift(c *gin.Context) {
	if err := drift.Run(c.Request.Context()); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, drift.Last())
}

func skipDrift(c *gin.Context) {
	if scheduler == nil {
		abort(c, http.StatusConflict, errors.New("no drift check schedule"))
		return
	}
	if err := scheduler.Skip(); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "ok")
}

// streamEvents serves the event hub as server-sent events until the client
// goes away.
func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Flush headers now so clients see the stream before the first event.
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-ping.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})
}
