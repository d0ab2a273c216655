package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt_addr: tcp://broker.internal:1883
store: /var/lib/fleetmq/agent.json
restricted: "no"
destinations:
  bin: /usr/local/bin
  tmp: /tmp
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "tcp://broker.internal:1883", cfg.MQTTAddr)
	require.Equal(t, "/var/lib/fleetmq/agent.json", cfg.Store)
	require.Equal(t, "info", cfg.LogLevel, "envDefault applies when unset in YAML")
	require.Equal(t, "/usr/local/bin", cfg.Destinations["bin"])
	require.False(t, cfg.IsRestricted())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 60, cfg.AliveInterval)
	require.True(t, cfg.IsRestricted())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt_addr: tcp://from-yaml:1883\n"), 0644))

	t.Setenv("FLEETMQ_MQTT_ADDR", "tcp://from-env:1883")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://from-env:1883", cfg.MQTTAddr)
}
