package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Level: "info", Format: "text"}
	assert.NoError(t, cfg.Validate(), "stdout only needs level and format")

	cfg.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "invalid level")

	cfg = Config{Level: "debug", Format: "json", Path: t.TempDir(), RotationTime: "24h", MaxAge: "bad"}
	assert.ErrorContains(t, cfg.Validate(), "max_age is invalid")
}

func TestInit_WithFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := Config{Path: t.TempDir(), RotationTime: "24h", MaxAge: "168h", Level: "info", Format: "json"}
	require.NoError(t, Init(cfg))
	Logger("test").Info("hello")
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Config{Level: "warn", Format: "json"})).With("module", "kvstore")

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("filter dropped", "key", "category")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kvstore", line["module"])
	assert.Equal(t, "category", line["key"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}$`, line["time"])
}
