// Package bootstrap writes a starter configuration, and the SSH files it
// points at, for a new cellview install.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"pkt.systems/cellview/internal/appconfig"
	"pkt.systems/cellview/sshserver"
)

// Options controls optional bootstrap behaviors.
type Options struct {
	Overrides []ConfigOverride
	// AuthorizedKey is an authorized_keys line written next to the config
	// and used as the SSH mirror's key file.
	AuthorizedKey string
}

// ConfigOverride sets a dotted config path, e.g. http.enabled.
type ConfigOverride struct {
	Path  string
	Value any
}

// Paths reports where bootstrap wrote its outputs.
type Paths struct {
	ConfigPath         string
	HostKeyPath        string
	AuthorizedKeysPath string
}

const (
	configName         = "config.yaml"
	hostKeyName        = "ssh_host_key"
	authorizedKeysName = "authorized_keys"
)

// ParseOverride parses path=value. The value is decoded as YAML so that
// booleans and numbers keep their type.
func ParseOverride(arg string) (ConfigOverride, error) {
	path, raw, ok := strings.Cut(arg, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return ConfigOverride{}, fmt.Errorf("config override %q: want path=value", arg)
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return ConfigOverride{}, fmt.Errorf("config override %q: %w", arg, err)
	}
	if value == nil {
		value = ""
	}
	return ConfigOverride{Path: path, Value: value}, nil
}

// WriteBootstrap writes config.yaml to outputDir, or to the default config
// location when outputDir is empty. The SSH host key is generated when the
// resulting config enables the SSH mirror.
func WriteBootstrap(outputDir string, overwrite bool, opts Options) (Paths, error) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		return Paths{}, err
	}
	configPath, err := appconfig.DefaultConfigPath()
	if err != nil {
		return Paths{}, err
	}
	if outputDir != "" {
		rootDir, err := filepath.Abs(outputDir)
		if err != nil {
			rootDir = outputDir
		}
		configPath = filepath.Join(rootDir, configName)
		cfg.SSH.HostKeyPath = filepath.Join(rootDir, hostKeyName)
	}
	if !overwrite {
		if _, err := os.Stat(configPath); err == nil {
			return Paths{}, fmt.Errorf("file already exists: %s", configPath)
		}
	}
	dir := filepath.Dir(configPath)

	paths := Paths{ConfigPath: configPath}
	if key := strings.TrimSpace(opts.AuthorizedKey); key != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return Paths{}, fmt.Errorf("authorized key: %w", err)
		}
		cfg.SSH.AuthorizedKeys = filepath.Join(dir, authorizedKeysName)
		paths.AuthorizedKeysPath = cfg.SSH.AuthorizedKeys
	}
	if len(opts.Overrides) > 0 {
		cfg, err = applyOverrides(cfg, opts.Overrides)
		if err != nil {
			return Paths{}, err
		}
	}
	if err := appconfig.Validate(cfg); err != nil {
		return Paths{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, err
	}
	if paths.AuthorizedKeysPath != "" {
		line := strings.TrimSpace(opts.AuthorizedKey) + "\n"
		if err := os.WriteFile(paths.AuthorizedKeysPath, []byte(line), 0o600); err != nil {
			return Paths{}, err
		}
	}
	if cfg.SSH.Enabled {
		if _, err := sshserver.EnsureHostKey(cfg.SSH.HostKeyPath); err != nil {
			return Paths{}, err
		}
		paths.HostKeyPath = cfg.SSH.HostKeyPath
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

func applyOverrides(cfg appconfig.Config, overrides []ConfigOverride) (appconfig.Config, error) {
	if len(overrides) == 0 {
		return cfg, nil
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	updated, err := applyOverridesToYAML(raw, overrides)
	if err != nil {
		return cfg, err
	}
	var next appconfig.Config
	if err := yaml.Unmarshal(updated, &next); err != nil {
		return cfg, err
	}
	return next, nil
}

func applyOverridesToYAML(configYAML []byte, overrides []ConfigOverride) ([]byte, error) {
	var data map[string]any
	if err := yaml.Unmarshal(configYAML, &data); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := setOverrideValue(data, override.Path, override.Value); err != nil {
			return nil, err
		}
	}
	return yaml.Marshal(data)
}

func setOverrideValue(root map[string]any, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config override path is required")
	}
	parts := strings.Split(path, ".")
	node := root
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("invalid config override path %q", path)
		}
		if i == len(parts)-1 {
			if _, ok := node[part]; !ok {
				return fmt.Errorf("unknown config key %q", path)
			}
			node[part] = value
			return nil
		}
		next, ok := node[part]
		if !ok {
			return fmt.Errorf("unknown config section %q in %q", part, path)
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config override %q: %q is not a section", path, part)
		}
		node = child
	}
	return nil
}
