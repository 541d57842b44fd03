package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"spatialization-module/internal/config"
)

// Init configures the global logrus logger. Unknown levels fall back to info.
func Init(cfg config.LoggerConfig) {
	InitWithOutput(cfg, os.Stdout)
}

func InitWithOutput(cfg config.LoggerConfig, out io.Writer) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(out)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
