// Package settings loads and persists the daemon configuration. A
// calendar session takes a snapshot of the configuration when the view
// opens; edits to the file take effect on the next open.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultListen = "127.0.0.1:8484"

// Config is the daemon configuration.
type Config struct {
	// Vault is the root directory of the document vault.
	Vault string `yaml:"vault"`
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// RecursiveLocal includes subdirectories when reading local sources.
	RecursiveLocal bool `yaml:"recursive_local"`
	// Resync is an optional cron expression for periodic full rescans.
	Resync string `yaml:"resync,omitempty"`
	// OpenCommand is run as "command <absolute path>" to open a document
	// in an editor. Empty disables opening.
	OpenCommand string `yaml:"open_command,omitempty"`
	// AllowedOrigins restricts browser access to the HTTP API.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// Sources are the calendar sources that make up the view.
	Sources SourceList `yaml:"sources"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Vault:          ".",
		Listen:         defaultListen,
		AllowedOrigins: []string{"*"},
		Sources:        SourceList{Local{Dir: "events"}},
	}
}

// Normalize backfills unset fields with their defaults.
func (c *Config) Normalize() {
	if c.Vault == "" {
		c.Vault = "."
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.Sources == nil {
		c.Sources = SourceList{}
	}
}

// Locals returns the local sources in configuration order.
func (c *Config) Locals() []Local {
	var out []Local
	for _, s := range c.Sources {
		if l, ok := s.(Local); ok {
			out = append(out, l)
		}
	}
	return out
}

// Load reads the configuration at path. On first run the default
// configuration is written there and returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically: a temp file in the target
// directory is synced and renamed over path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync config: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
