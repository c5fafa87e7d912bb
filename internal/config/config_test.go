package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 8080 {
		t.Errorf("defaults = %s:%d, want 127.0.0.1:8080", cfg.Host, cfg.Port)
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "clinical.db") {
		t.Errorf("DBPath = %s, not under DataDir", cfg.DBPath)
	}
	if !cfg.WatchBundles {
		t.Error("bundle watching should default on")
	}
	if cfg.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENALVIEW_DATA_DIR", dir)
	t.Setenv("RENALVIEW_PORT", "9999")

	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("LoadMinimal: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, dir)
	}
	if cfg.DBPath != filepath.Join(dir, "clinical.db") {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if cfg.BundleDir != filepath.Join(dir, "bundles") {
		t.Errorf("BundleDir = %s", cfg.BundleDir)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENALVIEW_DATA_DIR", dir)

	content := `{"port": 7777, "bundle_dir": "/srv/bundles", "watch_bundles": false}`
	if err := os.WriteFile(
		filepath.Join(dir, "config.json"), []byte(content), 0o600,
	); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("LoadMinimal: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want 7777 from file", cfg.Port)
	}
	if cfg.BundleDir != "/srv/bundles" {
		t.Errorf("BundleDir = %s", cfg.BundleDir)
	}
	if cfg.WatchBundles {
		t.Error("WatchBundles should be false from file")
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENALVIEW_DATA_DIR", dir)
	t.Setenv("RENALVIEW_PORT", "9999")

	content := `{"port": 7777, "bundle_dir": "/srv/bundles"}`
	if err := os.WriteFile(
		filepath.Join(dir, "config.json"), []byte(content), 0o600,
	); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadMinimal()
	if err != nil {
		t.Fatalf("LoadMinimal: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, env must beat the file value", cfg.Port)
	}
	if cfg.BundleDir != "/srv/bundles" {
		t.Errorf("BundleDir = %s, file value should survive", cfg.BundleDir)
	}
}

func TestLoadInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENALVIEW_DATA_DIR", dir)

	if err := os.WriteFile(
		filepath.Join(dir, "config.json"), []byte("{nope"), 0o600,
	); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadMinimal(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestFlagsWinOverEnv(t *testing.T) {
	t.Setenv("RENALVIEW_PORT", "9999")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"-port", "1234", "-no-watch"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1234 {
		t.Errorf("Port = %d, want flag value 1234", cfg.Port)
	}
	if cfg.WatchBundles {
		t.Error("-no-watch should disable bundle watching")
	}
}

func TestUnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("RENALVIEW_HOST", "0.0.0.0")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %s, env value should survive unset flag", cfg.Host)
	}
}
