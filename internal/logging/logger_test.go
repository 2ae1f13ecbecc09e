package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/zzenonn/zblob/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"DEBUG", log.DebugLevel},
		{" info ", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.ErrorLevel},
		{"bogus", log.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.name), tt.name)
	}
}

func TestInitLogger(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	InitLogger(&config.Config{LogLevel: "debug", Namespace: "ZBLOB"})
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	InitLogger(&config.Config{LogLevel: "nonsense", Namespace: "ZBLOB"})
	assert.Equal(t, log.ErrorLevel, log.GetLevel())
}
