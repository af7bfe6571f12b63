package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// fileHook copies every entry into a run log file, without terminal colors.
type fileHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}

// addLogFile starts logging into stagecal_<timestamp>.log under home and
// returns a func closing the file.
func addLogFile(home string) (func(), error) {
	if err := os.MkdirAll(home, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs home %s: %w", home, err)
	}
	name := fmt.Sprintf("stagecal_%s.log", time.Now().Format("2006-01-02_15_04_05"))
	path := filepath.Join(home, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	prev := make(logrus.LevelHooks)
	for l, hs := range logrus.StandardLogger().Hooks {
		prev[l] = append([]logrus.Hook(nil), hs...)
	}
	logrus.AddHook(&fileHook{
		w: f,
		formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		},
	})
	logrus.WithField("path", path).Info("logging to file")

	return func() {
		logrus.StandardLogger().ReplaceHooks(prev)
		if err := f.Close(); err != nil {
			logrus.Warnf("failed to close log file %s", path)
		}
	}, nil
}
