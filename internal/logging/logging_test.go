package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"debug_json", Config{Level: "debug", Format: "json"}, false},
		{"bad_level", Config{Level: "chatty"}, true},
		{"bad_format", Config{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(Config{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("Unknown version header", zap.String("first_byte", "0x10"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "Unknown version header")
}

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interceptor.log")

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.File = path
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Named("link").Info("Link established", zap.String("link", "0-1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "link", entry["logger"])
	assert.Equal(t, "0-1", entry["link"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"Link established"`))
}

// TestNew_ConsoleWithFile tests that the file sink keeps JSON level names
// when the console uses capitalized ones
func TestNew_ConsoleWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interceptor.log")

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = path
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Info("Link established")
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "INFO")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "info", entry["level"])
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}
