package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger. Level comes from LOG_LEVEL,
// output goes to LOG_FILE when set (stdout otherwise).
func InitLogger(isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		if isDevelopment {
			logLevel = "debug"
		} else {
			logLevel = "info"
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(os.Stdout)
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Warn("Failed to open LOG_FILE, logging to stdout")
		} else {
			log.SetOutput(f)
		}
	}

	Logger = log
	return log
}

// GetLogger returns the global logger instance.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger(false)
	}
	return Logger
}

// WithComponent creates a logger with component context.
func WithComponent(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}

// WithDraftContext creates a logger with draft session context.
func WithDraftContext(draftID string, pickCount int) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"draft_id":   draftID,
		"pick_count": pickCount,
	})
}
