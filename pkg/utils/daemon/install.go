package daemon

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	//go:embed stagecal.service
	unitTemplate string

	unitDir  = "/etc/systemd/system"
	unitName = "stagecal.service"

	// systemctl is a test seam.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

func unitPath() string {
	return filepath.Join(unitDir, unitName)
}

// Unit renders the systemd unit running exePath as the gateway daemon.
func Unit(exePath, configPath, socketPath string) string {
	r := strings.NewReplacer(
		"/path/to/stagecal", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	)
	return r.Replace(unitTemplate)
}

// Install writes the systemd unit for the current executable, then enables
// and starts it.
func Install(configPath, socketPath string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}
	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the config: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	path := unitPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, run 'stagecal uninstall' first", path)
	}

	logrus.Infof("writing systemd unit to %s", path)
	if err := os.MkdirAll(unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}
	if err := os.WriteFile(path, []byte(Unit(exePath, configPath, socketPath)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logrus.Infof("starting stagecal")
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}
