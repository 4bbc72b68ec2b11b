package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLevelResolution(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		raw         string
		want        zapcore.Level
	}{
		{"production default", "production", "", zapcore.InfoLevel},
		{"development default", "development", "", zapcore.DebugLevel},
		{"explicit override", "production", "debug", zapcore.DebugLevel},
		{"explicit warn", "development", "warn", zapcore.WarnLevel},
		{"garbage falls back", "production", "loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, level(tt.environment, tt.raw))
		})
	}
}

func TestGlobalLoggerAvailable(t *testing.T) {
	assert.NotNil(t, L())
	assert.NotNil(t, S())
	assert.NotNil(t, WithContext())
}
