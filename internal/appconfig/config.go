package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	Server        ServerConfig   `mapstructure:"server" yaml:"server"`
	View          ViewConfig     `mapstructure:"view" yaml:"view"`
	RichText      RichTextConfig `mapstructure:"richtext" yaml:"richtext"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServerConfig points at the computation server whose stream is viewed.
type ServerConfig struct {
	URL               string `mapstructure:"url" yaml:"url"`
	StreamPath        string `mapstructure:"stream_path" yaml:"stream_path"`
	InitialBackoffMS  int    `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffSeconds int    `mapstructure:"max_backoff_seconds" yaml:"max_backoff_seconds"`
}

// ViewConfig controls the terminal projection.
type ViewConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
	Plain bool   `mapstructure:"plain" yaml:"plain"`
}

// RichTextConfig toggles math typesetting in prose blocks.
type RichTextConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// HTTPConfig configures the HTTP mirror.
type HTTPConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// SSHConfig configures the SSH mirror.
type SSHConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr           string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath    string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeys string `mapstructure:"authorized_keys" yaml:"authorized_keys"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Server: ServerConfig{
			URL:               "http://localhost:8000",
			StreamPath:        "/getnext",
			InitialBackoffMS:  500,
			MaxBackoffSeconds: 30,
		},
		View: ViewConfig{
			Theme: "outrun",
			Plain: false,
		},
		RichText: RichTextConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Enabled:    false,
			Addr:       ":27490",
			BaseURL:    "",
			BasePath:   "",
			HubHistory: 512,
		},
		SSH: SSHConfig{
			Enabled:        false,
			Addr:           ":27491",
			HostKeyPath:    filepath.Join(home, ".cellview", "ssh_host_key"),
			AuthorizedKeys: filepath.Join(home, ".ssh", "authorized_keys"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cellview", "config.yaml"), nil
}
