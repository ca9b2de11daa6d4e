package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lineflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ModeSimulation, cfg.Provider.Mode)
	assert.Equal(t, []string{"P1", "P2", "P3"}, cfg.Line.Route)
	assert.Equal(t, 14*24*time.Hour, cfg.Maintenance.OptimalInterval)
}

func TestLoadOverridesAndDurations(t *testing.T) {
	path := writeConfig(t, `
line:
  id: assembly
  route: [A, B]
  transit: 1500ms
  strict_sequential: true
  posts:
    - {code: A, capacity: 10, stock: 8, tu: 12.5}
provider:
  mode: HYBRID
  serial:
    port: /dev/ttyUSB0
    baud: 115200
    gating_timeout: 30s
messaging:
  backend: mqtt
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "assembly", cfg.Line.ID)
	assert.Equal(t, 1500*time.Millisecond, cfg.Line.Transit)
	assert.True(t, cfg.Line.StrictSequential)
	assert.Equal(t, ModeHybrid, cfg.Provider.Mode)
	assert.Equal(t, 30*time.Second, cfg.Provider.Serial.GatingTimeout)
	assert.Equal(t, "\n", cfg.Provider.Serial.Newline)

	pc, ok := cfg.Line.PostConfig("A")
	require.True(t, ok)
	assert.Equal(t, 12.5, pc.TU)
	_, ok = cfg.Line.PostConfig("B")
	assert.False(t, ok)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown mode", "provider: {mode: bluetooth}"},
		{"serial without port", "provider: {mode: serial}"},
		{"empty route", "line: {route: []}"},
		{"bad driver", "database: {driver: mysql}"},
		{"bad backend", "messaging: {backend: amqp}"},
		{"bad probability", "realtime: {incident_probability: 2}"},
		{"archive without endpoint", "archive: {enabled: true}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Line.ID = "saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Line.ID)
	assert.Equal(t, cfg.Line.Transit, loaded.Line.Transit)
}
