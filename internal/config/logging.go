package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger from the loaded configuration.
// With log.file set, output goes to a size-rotated file; otherwise
// stderr.
func NewLogger() *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	var out io.Writer = os.Stderr
	if path := GetString("log.file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    GetInt("log.max-size-mb"),
			MaxBackups: GetInt("log.max-backups"),
			MaxAge:     GetInt("log.max-age-days"),
			Compress:   true,
		}
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(out)
	return log
}
