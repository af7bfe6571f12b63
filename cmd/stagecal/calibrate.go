package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/beamtools/stagecal/pkg/calibration"
	"github.com/beamtools/stagecal/pkg/client"
	"github.com/beamtools/stagecal/pkg/config"
	"github.com/beamtools/stagecal/pkg/hardware"
	"github.com/beamtools/stagecal/pkg/registration"
)

var modeDocs = map[calibration.Mode][2]string{
	calibration.ModeResolution: {
		"Measure the detector pixel size",
		`Acquire the sphere, move the stage laterally by the off-axis distance and
acquire it again. The image shift gives the pixel size, which every other
mode needs.`,
	},
	calibration.ModeFocus: {
		"Find the sharpest scintillator focus",
		`Hill-climb the focus axis on the image standard deviation, halving and
reversing the step whenever sharpness drops, and park at the sharpest
position found.`,
	},
	calibration.ModeCenter: {
		"Center the sphere on the rotation axis",
		`Measure the sphere shift at two pairs of rotation angles, derive its offset
from the rotation axis and move the center axes to cancel it.`,
	},
	calibration.ModeRoll: {
		"Level the rotation axis roll, then center",
		`Compare the sphere height at opposite angles with the sphere moved to the
detector edge, correct the roll and re-center.`,
	},
	calibration.ModePitch: {
		"Level the rotation axis pitch, then center",
		`Compare the sphere height at opposite angles with the sphere moved along
the beam, correct the pitch and re-center.`,
	},
	calibration.ModeCheck: {
		"Report the sphere centroid",
		`Acquire the sphere at 0 degrees and report its center of mass without
moving anything else.`,
	},
}

// NewModeCommands returns one command per calibration mode.
func NewModeCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(calibration.Modes))
	for _, m := range calibration.Modes {
		mode := m
		doc := modeDocs[mode]
		cmds = append(cmds, &cobra.Command{
			Use:     mode.String(),
			Short:   doc[0],
			Long:    doc[1],
			GroupID: gCalibration,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMode(cmd, mode)
			},
		})
	}
	return cmds
}

// newChannels returns the channels of the beamline: the simulator, or the
// daemon's channels.
var newChannels = func() (*hardware.Channels, error) {
	if simulate {
		logrus.Warn("using the simulated beamline")
		return hardware.NewSimulator(hardware.DefaultSimulatorConfig()).Channels(), nil
	}
	c := client.NewClient(unixSocketPath)
	if _, err := c.GetVersion(); err != nil {
		return nil, err
	}
	return c.Channels(), nil
}

// newEstimator returns the shift estimator used by the runs.
var newEstimator = func() registration.Estimator {
	return &registration.PhaseCorrelator{}
}

func runMode(cmd *cobra.Command, mode calibration.Mode) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return err
	}

	home := logsHome
	if home == "" {
		home = conf.LogsHome()
	}
	closeLog, err := addLogFile(home)
	if err != nil {
		logrus.WithError(err).Warn("run log file disabled")
	} else {
		defer closeLog()
	}
	logrus.WithFields(conf.LogrusFields()).Debug("config loaded")

	ch, err := newChannels()
	if err != nil {
		return err
	}

	detCfg := conf.Detector()
	detCfg.DumpDir = dumpDir
	det, err := hardware.NewDetector(ch, detCfg)
	if err != nil {
		return err
	}

	calCfg := conf.Calibration()
	if assumeYes {
		calCfg.Ask = false
	}
	engine, err := calibration.NewEngine(ch, det, newEstimator(), calCfg,
		newPrompt(cmd.InOrStdin(), cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	if !engine.Config().Ask {
		logrus.Info("confirmation disabled, corrections are applied without asking")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := conf.Result()
	err = engine.Run(ctx, mode, &res)
	if err != nil && !errors.Is(err, calibration.ErrDeclined) {
		return err
	}

	// A declined correction still leaves what was measured before it.
	conf.SetResult(res)
	if saveErr := conf.Save(); saveErr != nil {
		return pkgerrors.Wrapf(saveErr, "failed to save results")
	}

	if errors.Is(err, calibration.ErrDeclined) {
		logrus.Warn("correction declined, stage not moved")
	}
	printResult(cmd, mode, res)
	return nil
}

func printResult(cmd *cobra.Command, mode calibration.Mode, res calibration.Result) {
	cmd.Println(bold("%s results:", mode))
	switch mode {
	case calibration.ModeResolution:
		cmd.Printf("  Pixel size: %s\n", floatText(res.PixelSize, "%.4f µm"))
	case calibration.ModeFocus:
		cmd.Printf("  Focus position: %s\n", floatText(res.Focus, "%.4f"))
	case calibration.ModeRoll:
		cmd.Printf("  Roll: %s\n", floatText(res.Roll, "%.4f°"))
	case calibration.ModePitch:
		cmd.Printf("  Pitch: %s\n", floatText(res.Pitch, "%.4f°"))
	}
	switch mode {
	case calibration.ModeCenter, calibration.ModeRoll, calibration.ModePitch:
		cmd.Printf("  Sphere offset from axis: %s\n", bold("x=%.2f y=%.2f px", res.AxisX, res.AxisY))
		cmd.Printf("  Rotation axis location: %s\n", floatText(res.RotationAxisLocation, "%.2f px"))
	}
	if res.Centroid != nil {
		cmd.Printf("  Sphere centroid: %s\n", bold("row=%.2f col=%.2f", res.Centroid.Row, res.Centroid.Col))
	}
}
