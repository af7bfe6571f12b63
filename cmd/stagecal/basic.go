package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/beamtools/stagecal/pkg/client"
	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version",
		GroupID: gBasic,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewInitCommand() *cobra.Command {
	force := false
	ask := true

	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Write a config file with every setting at its default",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				logrus.Warnf("%s already exists, use --force to overwrite it", configPath)
				return nil
			}
			conf := config.NewFileFromConfig(config.DefaultRawFileConfig(), configPath)
			conf.SetAsk(ask)
			if err := conf.Save(); err != nil {
				return err
			}
			cmd.Printf("config written to %s\n", bold("%s", configPath))
			cmd.Println("Edit it to match the beamline, then run 'stagecal resolution'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&ask, "ask", true, "ask for confirmation before every correcting move")

	return cmd
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the configuration and the last results",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			res := conf.Result()
			cmd.Println(bold("Results:"))
			cmd.Printf("  Pixel size: %s\n", floatText(res.PixelSize, "%.4f µm"))
			cmd.Printf("  Focus position: %s\n", floatText(res.Focus, "%.4f"))
			cmd.Printf("  Rotation axis location: %s\n", floatText(res.RotationAxisLocation, "%.2f px"))
			cmd.Printf("  Roll: %s\n", floatText(res.Roll, "%.4f°"))
			cmd.Printf("  Pitch: %s\n", floatText(res.Pitch, "%.4f°"))
			if res.Centroid != nil {
				cmd.Printf("  Last centroid: %s\n", bold("row=%.2f col=%.2f", res.Centroid.Row, res.Centroid.Col))
			}
			cmd.Println()

			cal := conf.Calibration()
			cmd.Println(bold("Sphere calibration:"))
			cmd.Printf("  Off-axis position: %s\n", bold("%g mm", cal.OffAxisPosition))
			cmd.Printf("  Center angles: %s\n", bold("%g° / %g°", cal.CenterAngle1, cal.CenterAngle2))
			cmd.Printf("  Angle shift: %s\n", bold("%g°", cal.AngleShift))
			cmd.Printf("  Sphere diameter: %s\n", bold("%g mm", cal.SphereDiameter))
			cmd.Printf("  Upsample factor: %s\n", bold("%d", cal.Upsample))
			cmd.Printf("  Ask before moving: %s\n", bool2Text(cal.Ask))
			cmd.Println()

			det := conf.Detector()
			cmd.Println(bold("Detector:"))
			cmd.Printf("  Exposure time: %s\n", bold("%g s", det.ExposureTime))
			cmd.Printf("  Shutter control: %s\n", bool2Text(!det.Testing))
			cmd.Printf("  Flat field axis: %s\n", bold("%s", det.FlatFieldAxis))
			cmd.Println()

			cmd.Println(bold("Daemon:"))
			apiClient := client.NewClient(unixSocketPath)
			v, err := apiClient.GetVersion()
			if err != nil {
				cmd.Printf("  Running: %s\n", bool2Text(false))
				return nil
			}
			cmd.Printf("  Running: %s (%s)\n", bool2Text(true), v)
			if v != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": v,
				}).Warn("version mismatch between client and daemon")
			}
			if st, err := apiClient.GetDrift(); err == nil {
				printDrift(cmd, st)
			}
			return nil
		},
	}
}

func floatText(v *float64, format string) string {
	if v == nil {
		return color.New(color.Faint).Sprint("unknown")
	}
	return bold(format, *v)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func errText(format string, a ...interface{}) string {
	return color.New(color.Bold, color.FgRed).Sprint(fmt.Sprintf(format, a...))
}
