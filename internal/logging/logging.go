// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/manager-data-agent/backend/internal/config"
	"github.com/sirupsen/logrus"
)

// Init initializes the logger based on the configuration. The returned closer
// releases the log file when output goes to one.
func Init(cfg config.LoggingConfig) func() error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', using 'info' instead. Error: %v", cfg.Level, err)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	closer := func() error { return nil }
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logrus.Warnf("Failed to open log file '%s', using 'stdout' instead. Error: %v", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
			closer = file.Close
		}
	}
	logrus.SetOutput(output)

	logrus.Debug("Logger initialized")
	return closer
}

// For returns a logger entry tagged with a component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
