package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/config"
)

// EnvLogLevel is read at startup, before any configuration is loaded.
const EnvLogLevel = "LOG_LEVEL"

var levels = map[string]log.Level{
	"trace":   log.TraceLevel,
	"debug":   log.DebugLevel,
	"info":    log.InfoLevel,
	"warn":    log.WarnLevel,
	"warning": log.WarnLevel,
	"error":   log.ErrorLevel,
}

// ParseLevel maps a configured level name to a logrus level. Unknown or
// empty names give ErrorLevel so CLI output stays limited to failures.
func ParseLevel(name string) log.Level {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}
	return log.ErrorLevel
}

// InitLogger applies the configured level. Rebuild workers log from many
// goroutines, so timestamps are always full and go to stderr, leaving
// stdout to command results.
func InitLogger(cfg *config.Config) {
	log.SetOutput(os.Stderr)
	log.SetLevel(ParseLevel(cfg.LogLevel))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.WithField("namespace", cfg.Namespace).Debugf("Logging at %s level", log.GetLevel())
}

func init() {
	log.SetLevel(ParseLevel(os.Getenv(EnvLogLevel)))
}
