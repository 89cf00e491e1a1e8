// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resetGlobalLogger guarantees test isolation for the singleton.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeJSONFormat(t *testing.T) {
	resetGlobalLogger()
	defer resetGlobalLogger()

	buf := &syncBuffer{}
	cfg := config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "test-service",
	}
	Initialize(cfg, zapcore.Lock(buf))

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("structured entry", zap.String("widget", "spinner"))

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line, "expected a log line to be written")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "structured entry", entry["msg"])
	assert.Equal(t, "spinner", entry["widget"])
	assert.Equal(t, "test-service", entry["logger"])
}

func TestInitializeConsoleFormat(t *testing.T) {
	resetGlobalLogger()
	defer resetGlobalLogger()

	buf := &syncBuffer{}
	cfg := config.LoggerConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "marionette-test",
	}
	Initialize(cfg, zapcore.Lock(buf))

	GetLogger().Named("component").Info("hello console")

	out := buf.String()
	assert.Contains(t, out, "hello console")
	// The name encoder suffixes a dot after the logger path.
	assert.Contains(t, out, "marionette-test.component.")
}

func TestInitializeRunsOnce(t *testing.T) {
	resetGlobalLogger()
	defer resetGlobalLogger()

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.Lock(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.Lock(second))

	GetLogger().Info("who receives this")

	assert.NotEmpty(t, first.String(), "the first initialization owns the output")
	assert.Empty(t, second.String(), "a second initialization must be a no-op")
}

func TestLevelFallsBackToInfo(t *testing.T) {
	resetGlobalLogger()
	defer resetGlobalLogger()

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "svc"}, zapcore.Lock(buf))

	GetLogger().Debug("below the fallback level")
	assert.Empty(t, buf.String(), "debug output should be suppressed at the info fallback")

	GetLogger().Info("at the fallback level")
	assert.NotEmpty(t, buf.String())
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetGlobalLogger()
	defer resetGlobalLogger()

	logger := GetLogger()
	require.NotNil(t, logger, "the fallback logger must always be usable")
}
