// Package logging sets up logrus for the CLI
package logging

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Configure sets the level and output format of logger. JSON output carries a
// GCP compatible severity field so that it can be shipped as is
func Configure(logger *log.Logger, level string, json bool) error {
	if logger == nil {
		return nil
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("couldn't parse log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	if json {
		logger.SetFormatter(&log.JSONFormatter{})
		logger.AddHook(SeverityHook{})
	} else {
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	return nil
}

// SeverityHook adds a GCP severity field to log entries that don't already
// have one
type SeverityHook struct{}

func (SeverityHook) Levels() []log.Level {
	return log.AllLevels
}

func (SeverityHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}
	if _, ok := entry.Data["severity"]; ok {
		return nil
	}

	entry.Data["severity"] = severityForLevel(entry.Level)
	return nil
}

func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}
