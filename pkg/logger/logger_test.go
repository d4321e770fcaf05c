package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/pkg/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(&config.Config{Env: "development", LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestWithFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.WithFields(map[string]interface{}{
		"symbol":     "AAPL",
		"conviction": 69.9,
	}).Info("decision appended")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, 69.9, entry["conviction"])
	assert.Equal(t, "decision appended", entry["message"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.WithError(errors.New("ledger unavailable")).Error("append failed")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ledger unavailable", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestComponent(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	zlog := log.Component("fusion.aggregator")
	zlog.Debug().Str("symbol", "MSFT").Msg("aggregated")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "fusion.aggregator", entry["component"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("discarded")
	})
}
