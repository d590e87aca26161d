package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.StreamPath != "/getnext" || cfg.View.Theme != "outrun" || !cfg.RichText.Enabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 7
server:
  url: http://localhost:8000
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
server:
  url: http://localhost:8000
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected missing config_version error, got %v", err)
	}
}

func TestLoadOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("DEX_HOST", "dex.internal")
	path := writeConfig(t, `
config_version: 1
server:
  url: http://$DEX_HOST:8000
view:
  theme: gruvbox
http:
  enabled: true
  base_path: /view
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "http://dex.internal:8000" {
		t.Fatalf("expected env expansion in server url, got %q", cfg.Server.URL)
	}
	if cfg.View.Theme != "gruvbox" || !cfg.HTTP.Enabled || cfg.HTTP.BasePath != "/view" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.HTTP.Addr != ":27490" {
		t.Fatalf("expected default http addr to survive, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalidServerURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
server:
  url: localhost:8000
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "server.url") {
		t.Fatalf("expected server.url error, got %v", err)
	}
}

func TestLoadRejectsBasePathURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
http:
  base_path: https://example.com/view
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "http.base_path") {
		t.Fatalf("expected base_path error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
