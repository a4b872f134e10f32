// Package config loads the ground daemon's TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const DefaultConfigPath = "novad.toml"

type Config struct {
	Link     LinkConfig     `toml:"link"`
	Capture  CaptureConfig  `toml:"capture"`
	Events   EventsConfig   `toml:"events"`
	Foxglove FoxgloveConfig `toml:"foxglove"`
}

// LinkConfig describes the TCP endpoint carrying the flight computer's
// byte stream.
type LinkConfig struct {
	Addr      string `toml:"addr"`
	Reconnect string `toml:"reconnect"`
	Buf       int    `toml:"buf"`
	ReaderBuf int    `toml:"reader_buf"`
}

// CaptureConfig controls the raw frame capture written alongside decoding.
// The capture is the authoritative flight record: the byte stream exactly
// as received, no container around it.
type CaptureConfig struct {
	Path string `toml:"path"`
}

// EventsConfig controls the JSONL event log and its rotation.
type EventsConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

type FoxgloveConfig struct {
	Enabled   bool   `toml:"enabled"`
	WSAddr    string `toml:"ws_addr"`
	Topic     string `toml:"topic"`
	BaroTopic string `toml:"baro_topic"`
	SendBuf   int    `toml:"send_buf"`
}

func Default() Config {
	return Config{
		Link: LinkConfig{
			Addr:      "127.0.0.1:19021",
			Reconnect: "1s",
			Buf:       256,
			ReaderBuf: 64 * 1024,
		},
		Capture: CaptureConfig{
			Path: "flight.ntl",
		},
		Events: EventsConfig{
			Path:       "",
			MaxSizeMB:  64,
			MaxBackups: 8,
		},
		Foxglove: FoxgloveConfig{
			Enabled:   false,
			WSAddr:    "127.0.0.1:8765",
			Topic:     "novafc/event",
			BaroTopic: "novafc/barometer",
			SendBuf:   256,
		},
	}
}

// Load reads and validates the config at path.
func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, fmt.Errorf("config: %s does not exist", path)
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path, falling back to defaults when the
// file does not exist. Fields absent from the file keep their defaults.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, false, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, false, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, true, nil
}

func (c Config) validate() error {
	if c.Link.Addr == "" {
		return fmt.Errorf("link.addr must not be empty")
	}
	if _, err := c.ReconnectInterval(); err != nil {
		return err
	}
	if c.Events.MaxSizeMB < 0 || c.Events.MaxBackups < 0 {
		return fmt.Errorf("events rotation limits must not be negative")
	}
	return nil
}

func (c Config) ReconnectInterval() (time.Duration, error) {
	if c.Link.Reconnect == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.Link.Reconnect)
	if err != nil {
		return 0, fmt.Errorf("link.reconnect: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("link.reconnect must be positive")
	}
	return d, nil
}
