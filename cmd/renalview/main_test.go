package main

import (
	"path/filepath"
	"testing"
)

func TestMustLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantHost  string
		wantPort  int
		wantWatch bool
	}{
		{
			name:      "DefaultArgs",
			args:      []string{},
			wantHost:  "127.0.0.1",
			wantPort:  8080,
			wantWatch: true,
		},
		{
			name:      "ExplicitFlags",
			args:      []string{"-host", "0.0.0.0", "-port", "9090", "-no-watch"},
			wantHost:  "0.0.0.0",
			wantPort:  9090,
			wantWatch: false,
		},
		{
			name:      "PartialFlags",
			args:      []string{"-port", "3000"},
			wantHost:  "127.0.0.1",
			wantPort:  3000,
			wantWatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RENALVIEW_DATA_DIR", t.TempDir())
			cfg := mustLoadConfig(tt.args)

			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.WatchBundles != tt.wantWatch {
				t.Errorf("WatchBundles = %v, want %v",
					cfg.WatchBundles, tt.wantWatch)
			}
			if cfg.DataDir == "" {
				t.Error("DataDir should be set")
			}
			if cfg.DBPath != filepath.Join(cfg.DataDir, "clinical.db") {
				t.Errorf("DBPath = %q not under DataDir", cfg.DBPath)
			}
		})
	}
}

func TestFlagDataDirOverridesDBPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENALVIEW_DATA_DIR", t.TempDir())
	cfg := mustLoadConfig([]string{"-data-dir", dir})
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.DBPath != filepath.Join(dir, "clinical.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}
