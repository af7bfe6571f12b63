package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/hardware"
)

var (
	backend   *hardware.Channels
	conf      config.Config
	sseHub    = events.NewEventHub()
	drift     = newDriftMonitor()
	scheduler *Scheduler
)

// newBackend returns the channels served by the daemon. Only the simulated
// beamline is built in.
var newBackend = func() (*hardware.Channels, error) {
	sim := hardware.NewSimulator(hardware.DefaultSimulatorConfig())
	return sim.Channels(), nil
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", getConfig)
	router.GET("/channels", listChannels)
	router.GET("/channels/float/:name", getChannel(backend.Floats))
	router.PUT("/channels/float/:name", putChannel(backend.Floats))
	router.GET("/channels/int/:name", getChannel(backend.Ints))
	router.PUT("/channels/int/:name", putChannel(backend.Ints))
	router.GET("/channels/string/:name", getChannel(backend.Strings))
	router.PUT("/channels/string/:name", putChannel(backend.Strings))
	router.GET("/arrays/:name", getArray)
	router.GET("/events", streamEvents)
	router.GET("/drift", getDrift)
	router.POST("/drift", runDrift)
	router.POST("/drift/skip", skipDrift)

	return router
}

// NewHandler serves ch and c through the gateway routes. Events go to the
// package hub and drift checks use c.
func NewHandler(ch *hardware.Channels, c config.Config) http.Handler {
	backend, conf = ch, c
	return setupRoutes()
}

func setupScheduler(ctx context.Context) {
	if scheduler == nil {
		scheduler = NewScheduler(drift.Run, preCheck,
			func(data any) {
				logrus.WithField("at", data).Info("drift check is coming up")
			},
			func(data any) {
				logrus.WithField("error", data).Error("scheduled drift check failed")
			})
	}
	if err := scheduler.Schedule(conf.DriftCheckSchedule()); err != nil {
		logrus.WithError(err).Error("failed to schedule drift check")
		return
	}
	scheduler.Start(ctx)
	if next, _ := scheduler.Status(); !next.IsZero() {
		logrus.Infof("next drift check at %s", next.Format(time.DateTime))
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	ch, err := newBackend()
	if err != nil {
		return err
	}
	if err := ch.Validate(); err != nil {
		return err
	}

	router := NewHandler(ch, conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupScheduler(ctx)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
			setupScheduler(ctx)
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		_ = os.Remove(unixSocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("exiting")
	return nil
}
