package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"novafc/pkg/config"
)

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, exists, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "novad.toml"))
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[link]
addr = "10.0.0.7:19021"
reconnect = "250ms"

[capture]
path = "captures/flight-041.ntl"

[foxglove]
enabled = true
ws_addr = "0.0.0.0:8765"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "10.0.0.7:19021", cfg.Link.Addr)
	require.Equal(t, "captures/flight-041.ntl", cfg.Capture.Path)
	require.True(t, cfg.Foxglove.Enabled)

	// Untouched sections keep their defaults.
	require.Equal(t, config.Default().Events, cfg.Events)
	require.Equal(t, config.Default().Foxglove.Topic, cfg.Foxglove.Topic)

	d, err := cfg.ReconnectInterval()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)
}

func TestLoadRejectsBadReconnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "novad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[link]
addr = "127.0.0.1:19021"
reconnect = "soon"
`), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
