// Package logging builds the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// New creates a logger at the given level. With a non-empty logPath the
// logger writes JSON to that file (append mode) as well as stderr, and the
// returned cleanup closes the file.
func New(level, logPath string) (*log.Logger, func(), error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := log.New()
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if logPath == "" {
		return logger, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	logger.SetOutput(io.MultiWriter(f, os.Stderr))
	logger.SetFormatter(&log.JSONFormatter{})

	cleanup := func() {
		f.Close()
	}
	return logger, cleanup, nil
}

// Discard returns a logger that writes nothing.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
