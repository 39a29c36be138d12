package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"stash/internal/logging"
	"stash/internal/storage"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.stash/config.toml"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Logging       LoggingConfig           `toml:"log"`
	Storage       StorageConfig           `toml:"storage"`
	DefaultDomain string                  `toml:"default_domain"`
	Domains       map[string]DomainConfig `toml:"domains"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type StorageConfig struct {
	Kind    string `toml:"kind"`
	WorkDir string `toml:"work_dir"`
	HomeDir string `toml:"home_dir"`
	KeySeed string `toml:"key_seed"`
}

// DomainConfig locates the messaging server for one account domain.
type DomainConfig struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Kind: string(storage.DefaultKind),
		},
		Domains: map[string]DomainConfig{},
	}
}

// Load reads a TOML config file over the defaults and validates the result.
// If path is empty, DefaultPath is used when it exists and defaults are
// returned otherwise.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = ExpandHome(DefaultPath)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}

	cfg.Storage.WorkDir = ExpandHome(cfg.Storage.WorkDir)
	cfg.Storage.HomeDir = ExpandHome(cfg.Storage.HomeDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole config and reports the first problem found.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Logging.Format)
	}

	if _, err := storage.ParseKind(c.Storage.Kind); err != nil {
		return fmt.Errorf("%w: storage.kind: %w", ErrInvalidConfig, err)
	}

	for _, name := range c.DomainNames() {
		d := c.Domains[name]
		if strings.TrimSpace(d.Server) == "" {
			return fmt.Errorf("%w: domain %q: missing server", ErrInvalidConfig, name)
		}
		if d.Port == 0 {
			return fmt.Errorf("%w: domain %q: missing port", ErrInvalidConfig, name)
		}
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("%w: domain %q: port %d out of range", ErrInvalidConfig, name, d.Port)
		}
	}

	if c.DefaultDomain != "" {
		if _, ok := c.Domains[c.DefaultDomain]; !ok {
			return fmt.Errorf("%w: default_domain %q is not configured", ErrInvalidConfig, c.DefaultDomain)
		}
	}
	return nil
}

// DomainNames returns the configured domains in sorted order.
func (c *Config) DomainNames() []string {
	names := make([]string, 0, len(c.Domains))
	for name := range c.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domain returns the named domain, or the default one when name is empty.
func (c *Config) Domain(name string) (string, DomainConfig, bool) {
	if name == "" {
		name = c.DefaultDomain
	}
	if name == "" && len(c.Domains) == 1 {
		name = c.DomainNames()[0]
	}
	d, ok := c.Domains[name]
	return name, d, ok
}

// ExpandHome resolves ~ and a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
