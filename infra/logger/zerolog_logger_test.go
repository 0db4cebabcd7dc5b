package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withOutput(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	require.NoError(t, Configure(cfg))
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		_ = Configure(Config{})
	})
	return buf
}

func TestZerologLoggerJSON(t *testing.T) {
	t.Setenv("APP_ENV", "")
	buf := withOutput(t, Config{Level: "debug", Format: "json"})

	l := New("router")
	l.Infof("issued %s", "b1")
	l.Debugw("state", map[string]any{"connected": true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "issued b1", entry["message"])
	assert.Equal(t, "info", entry["level"])
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, true, entry["connected"])
}

func TestZerologLoggerLevel(t *testing.T) {
	t.Setenv("APP_ENV", "")
	buf := withOutput(t, Config{Level: "warn"})
	l := New("mqtt")
	l.Debugf("hidden")
	l.Infof("hidden")
	l.Warnf("shown")
	l.Errorf("shown too")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.NotContains(t, buf.String(), "hidden")
}

func TestZerologLoggerConsole(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	buf := withOutput(t, Config{})
	NewZerologLogger("broker").With("client_id", "c1").Warnf("denied")
	out := buf.String()
	assert.Contains(t, out, "denied")
	assert.Contains(t, out, "client_id")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
	assert.Error(t, Configure(Config{Format: "xml"}))
}
