package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/beamtools/stagecal/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/stagecal.sock"
	configPath     = defaultConfigPath()
	logsHome       = ""
	simulate       = false
	assumeYes      = false
	dumpDir        = ""
)

var (
	gCalibration  = "Calibration:"
	gBasic        = "Basic:"
	gDaemon       = "Daemon:"
	commandGroups = []string{
		gCalibration,
		gBasic,
		gDaemon,
	}
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "stagecal.json"
	}
	return filepath.Join(home, "stagecal.json")
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.TimeOnly,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: stagecal daemon is not running")
		fmt.Fprintln(os.Stderr, "  - Start it with 'stagecal daemon' or install it with 'stagecal install'")
		fmt.Fprintln(os.Stderr, "  - Or use '--simulate' to run against the built-in simulator")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--allow-non-root-access'")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagecal",
		Short: "stagecal calibrates a tomography rotary stage with a reference sphere",
		Long: `stagecal calibrates a tomography rotary stage with a reference sphere.

It measures the detector pixel size, finds the best scintillator focus, and
aligns the rotation axis (center, roll and pitch) with the detector. Results
are written back to the config file after every run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "stagecal daemon unix socket path")
	globalFlags.StringVar(&logsHome, "logs-home", "", "directory for run log files (overrides the config)")
	globalFlags.BoolVar(&simulate, "simulate", false, "use the built-in simulated beamline instead of the daemon")
	globalFlags.BoolVarP(&assumeYes, "yes", "y", false, "apply corrections without asking")
	globalFlags.StringVar(&dumpDir, "dump-dir", "", "write every acquired frame as TIFF into this directory")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(NewModeCommands()...)
	cmd.AddCommand(
		NewInitCommand(),
		NewStatusCommand(),
		NewVersionCommand(),
		NewDaemonCommand(),
		NewWatchCommand(),
		NewDriftCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
