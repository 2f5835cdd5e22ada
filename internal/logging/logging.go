package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Configure sets up the process wide logrus logger.
func Configure(level, format string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.StandardLogger()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch strings.TrimSpace(format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
