package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileLogger builds a logger writing to stdout and, when logPath is set, to
// that file as well. The returned file is nil without a path and must be
// closed by the caller otherwise.
func FileLogger(level logrus.Level, logPath string) (*os.File, *logrus.Logger, error) {
	logger := ConsoleLogger(level)
	if logPath == "" {
		return nil, logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, logger, nil
}

func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// UseJSON switches the logger to the JSON formatter used in production.
func UseJSON(logger *logrus.Logger) {
	logger.SetFormatter(&logrus.JSONFormatter{})
}
