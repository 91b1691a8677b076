package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig selects the logrus level and output format.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Apply configures the standard logrus logger.
func (l LoggingConfig) Apply() error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("logging level: %w", err)
	}

	switch strings.ToLower(l.Format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		return fmt.Errorf("logging format %q: must be text or json", l.Format)
	}
	logrus.SetLevel(level)
	return nil
}
