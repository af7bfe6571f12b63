package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/beamtools/stagecal/pkg/client"
	"github.com/beamtools/stagecal/pkg/daemon"
	"github.com/beamtools/stagecal/pkg/events"
	"github.com/beamtools/stagecal/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the channel gateway daemon in the foreground",
		GroupID: gDaemon,
		Long: `Run the channel gateway daemon in the foreground.

The daemon serves the beamline channels on a unix socket, streams channel
writes as events and runs the scheduled drift check (driftCheckSchedule in
the config). Send SIGHUP to reload the config.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("stagecal daemon starting")
			return daemon.Run(configPath, unixSocketPath, allowNonRootAccess)
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false,
		"Allow non-root users to access the daemon.")

	return cmd
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Print daemon events as they happen",
		GroupID: gDaemon,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apiClient := client.NewClient(unixSocketPath)
			if _, err := apiClient.GetVersion(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				ts := time.Now().Format(time.TimeOnly)
				switch ev.Name {
				case events.ChannelPut:
					p, err := events.DecodeAs[events.ChannelPutEvent](ev)
					if err != nil {
						logrus.WithError(err).Warn("bad event")
						continue
					}
					cmd.Printf("%s %s %s = %v\n", ts, color.CyanString("put"), bold("%s", p.Channel), p.Value)
				case events.DriftCheck:
					p, err := events.DecodeAs[events.DriftCheckEvent](ev)
					if err != nil {
						logrus.WithError(err).Warn("bad event")
						continue
					}
					if p.Error != "" {
						cmd.Printf("%s %s %s\n", ts, color.MagentaString("drift"), errText("%s", p.Error))
						continue
					}
					cmd.Printf("%s %s row=%.2f col=%.2f drift=%s\n", ts, color.MagentaString("drift"),
						p.Row, p.Col, bold("%.2f px", p.Drift))
				default:
					cmd.Printf("%s %s %s\n", ts, ev.Name, string(ev.Data))
				}
			}
			return nil
		},
	}
}

func NewDriftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drift",
		Short:   "Show the daemon drift check status",
		GroupID: gDaemon,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := client.NewClient(unixSocketPath).GetDrift()
			if err != nil {
				return err
			}
			printDrift(cmd, st)
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run a drift check now",
			RunE: func(cmd *cobra.Command, _ []string) error {
				ev, err := client.NewClient(unixSocketPath).RunDrift()
				if err != nil {
					return err
				}
				cmd.Printf("Sphere centroid: %s, drift %s\n",
					bold("row=%.2f col=%.2f", ev.Row, ev.Col), bold("%.2f px", ev.Drift))
				return nil
			},
		},
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled drift check",
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := client.NewClient(unixSocketPath).SkipDrift(); err != nil {
					return err
				}
				logrus.Info("next drift check skipped")
				return nil
			},
		},
	)

	return cmd
}

func printDrift(cmd *cobra.Command, st *client.DriftStatus) {
	if st.Schedule == "" {
		cmd.Printf("  Drift check: %s\n", bool2Text(false))
		return
	}
	cmd.Printf("  Drift check: %s\n", bold("%s", st.Schedule))
	if st.NextRun != nil {
		cmd.Printf("  Next check: %s\n", bold("%s", st.NextRun.Local().Format(time.DateTime)))
	}
	if st.Last != nil {
		cmd.Printf("  Last check: %s, drift %s\n",
			bold("%s", time.Unix(st.Last.Ts, 0).Format(time.DateTime)), bold("%.2f px", st.Last.Drift))
	}
}
