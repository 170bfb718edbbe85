package utils

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"gemini-shim/internal/types"

	"github.com/sirupsen/logrus"
)

// lockedWriter serializes writes so concurrent goroutines do not interleave
// log lines when logging to multiple outputs.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// SetupLogger configures the global logrus logger from the log configuration.
func SetupLogger(configManager types.ConfigManager) {
	logConfig := configManager.GetLogConfig()

	level, err := logrus.ParseLevel(logConfig.Level)
	if err != nil {
		logrus.Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if logConfig.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if !logConfig.EnableFile {
		return
	}

	logDir := filepath.Dir(logConfig.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logrus.Warnf("Failed to create log directory: %v", err)
		return
	}
	file, err := os.OpenFile(logConfig.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.Warnf("Failed to open log file: %v", err)
		return
	}
	logFile = file
	logrus.SetOutput(&lockedWriter{w: io.MultiWriter(os.Stdout, logFile)})
}

var logFile *os.File

// CloseLogger flushes and closes the log file if one was opened.
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
