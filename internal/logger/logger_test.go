package logger_test

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  logger.LogLevel
		valid bool
	}{
		{"debug", logger.DebugLevel, true},
		{"INFO", logger.InfoLevel, true},
		{"warning", logger.WarnLevel, true},
		{"error", logger.ErrorLevel, true},
		{"loud", logger.WarnLevel, false},
	}

	for _, tt := range tests {
		got, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}

func TestErrorWithContext(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	var buf bytes.Buffer
	log := logger.New(&buf).With("spectrometer")

	err := errors.New().Wrap(errors.ErrTimeout, stderrors.New("no data"))
	log.ErrorWithContext(err, "spectrometer", "single_measure").Msg("measurement failed")

	out := buf.String()
	assert.Contains(t, out, `"error_code":"operation_timeout"`)
	assert.Contains(t, out, `"operation":"single_measure"`)
	assert.Contains(t, out, `"component":"spectrometer"`)
	assert.Contains(t, out, `"error":"no data"`)
}

func TestInitWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "avactl.log")
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Init(logger.Options{Level: "info", File: path, IsService: true})
	logger.Info().Str("device", "SIM-2048-0001").Msg("instrument connected")
	logger.Debug().Msg("below level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"instrument connected"`)
	assert.Contains(t, string(data), `"device":"SIM-2048-0001"`)
	assert.NotContains(t, string(data), "below level")
}
