package config

import (
	"github.com/sirupsen/logrus"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/hardware"
)

// Config is the persisted state of the tool: the inputs of every
// calibration mode and the results of previous runs.
type Config interface {
	// Calibration returns the inputs of a calibration run.
	Calibration() calibration.Config
	// Detector returns the acquisition settings.
	Detector() hardware.DetectorConfig
	// Result returns what previous runs measured.
	Result() calibration.Result
	// SetResult records what a run measured.
	SetResult(calibration.Result)

	ImagePixelSize() *float64
	DriftCheckSchedule() string
	LogsHome() string

	SetAsk(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
