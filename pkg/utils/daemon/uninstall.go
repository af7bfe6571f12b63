package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the daemon and removes its systemd unit.
func Uninstall() error {
	logrus.Infof("stopping stagecal")

	if err := systemctl("disable", "--now", unitName); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")

	path := unitPath()
	// if the file doesn't exist, we don't need to remove it
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", path, err)
	}

	return systemctl("daemon-reload")
}
