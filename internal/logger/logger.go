package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"depthview/internal/config"
)

// New builds the application logger. The level comes from the config, with
// the LOG_LEVEL environment variable taking precedence. When a file is
// configured, output rotates through lumberjack and uses the JSON formatter;
// otherwise it stays on stdout in text form.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}
