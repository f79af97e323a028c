// Package logging hands out one pre-configured logrus logger per component.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	output    io.Writer = os.Stderr
)

// NewLogger returns the logger for component, creating it on first use.
// LOG_LEVEL selects the level (default info) and LOG_FORMAT=json switches
// to structured output.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[component]; ok {
		return logger
	}

	logger := logrus.New()
	logger.SetOutput(output)

	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// SetOutput redirects every logger, existing and future.
func SetOutput(w io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	output = w
	for _, entry := range loggers {
		entry.Logger.SetOutput(w)
	}
}
