package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"content-eval/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
		level   zapcore.Level
	}{
		{name: "default_level", cfg: config.LogConfig{}, level: zapcore.InfoLevel},
		{name: "debug_json", cfg: config.LogConfig{Level: "debug", JSON: true}, level: zapcore.DebugLevel},
		{name: "warn_console", cfg: config.LogConfig{Level: "warn"}, level: zapcore.WarnLevel},
		{name: "invalid_level", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.level-1))
			}
		})
	}
}
