// Package config loads application configuration by layering
// defaults, an optional JSON config file, environment variables, and
// CLI flags — later layers win.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	DataDir      string        `json:"data_dir"`
	DBPath       string        `json:"-"`
	BundleDir    string        `json:"bundle_dir"`
	WatchBundles bool          `json:"watch_bundles"`
	WriteTimeout time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".renalview")
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, "clinical.db"),
		BundleDir:    filepath.Join(dataDir, "bundles"),
		WatchBundles: true,
		WriteTimeout: 30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env <
// flags. The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, env, and config file,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The data dir env var applies before the file layer because it
	// decides where config.json lives. The remaining env vars apply
	// after the file so env keeps beating file values.
	cfg.loadDataDirEnv()
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	cfg.DBPath = filepath.Join(cfg.DataDir, "clinical.db")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		BundleDir    string `json:"bundle_dir"`
		WatchBundles *bool  `json:"watch_bundles"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.BundleDir != "" {
		c.BundleDir = file.BundleDir
	}
	if file.WatchBundles != nil {
		c.WatchBundles = *file.WatchBundles
	}
	return nil
}

func (c *Config) loadDataDirEnv() {
	if v := os.Getenv("RENALVIEW_DATA_DIR"); v != "" {
		c.DataDir = v
		c.BundleDir = filepath.Join(v, "bundles")
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv("RENALVIEW_BUNDLE_DIR"); v != "" {
		c.BundleDir = v
	}
	if v := os.Getenv("RENALVIEW_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("RENALVIEW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// RegisterFlags declares the server flags on fs. Call before
// fs.Parse; pass the parsed set to Load.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("host", "", "host to bind to")
	fs.Int("port", 0, "port to listen on")
	fs.String("data-dir", "", "data directory (database, config)")
	fs.String("bundle-dir", "", "clinical bundle drop directory")
	fs.Bool("no-watch", false, "don't watch the bundle directory")
}

// applyFlags overrides cfg with flags the user explicitly set.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			if port, err := strconv.Atoi(f.Value.String()); err == nil {
				cfg.Port = port
			}
		case "data-dir":
			cfg.DataDir = f.Value.String()
			cfg.DBPath = filepath.Join(cfg.DataDir, "clinical.db")
		case "bundle-dir":
			cfg.BundleDir = f.Value.String()
		case "no-watch":
			cfg.WatchBundles = f.Value.String() != "true"
		}
	})
}
