package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/framemux/internal/driver"
	"github.com/danmuck/framemux/internal/mux"
	"github.com/danmuck/framemux/internal/peer"
	"gopkg.in/yaml.v3"
)

// Config is the resolved settings for one muxctl process.
type Config struct {
	Name           string
	Address        string
	ListenAddr     string
	TickInterval   time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Backoff        driver.BackoffConfig
	AdminAddr      string
	CorsOrigins    []string
	Probes         []string
}

type fileConfig struct {
	Name              string   `toml:"name" yaml:"name"`
	Address           string   `toml:"address" yaml:"address"`
	ListenAddr        string   `toml:"listen_addr" yaml:"listen_addr"`
	TickInterval      string   `toml:"tick_interval" yaml:"tick_interval"`
	ConnectTimeout    string   `toml:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout       string   `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      string   `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       string   `toml:"idle_timeout" yaml:"idle_timeout"`
	BackoffInitial    string   `toml:"backoff_initial" yaml:"backoff_initial"`
	BackoffMultiplier float64  `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	BackoffMax        string   `toml:"backoff_max" yaml:"backoff_max"`
	BackoffJitter     bool     `toml:"backoff_jitter" yaml:"backoff_jitter"`
	AdminAddr         string   `toml:"admin_addr" yaml:"admin_addr"`
	CorsOrigins       []string `toml:"cors_origins" yaml:"cors_origins"`
	Probes            []string `toml:"probes" yaml:"probes"`
}

func Default() Config {
	m := mux.DefaultConfig()
	d := driver.DefaultConfig()
	return Config{
		Name:           m.Name,
		Address:        m.Address,
		ListenAddr:     m.Address,
		TickInterval:   d.Interval,
		ConnectTimeout: m.ConnectTimeout,
		ReadTimeout:    m.ReadTimeout,
		WriteTimeout:   m.WriteTimeout,
		IdleTimeout:    peer.DefaultConfig().IdleTimeout,
		Backoff:        d.Backoff,
		CorsOrigins:    []string{},
		Probes:         []string{},
	}
}

// Load reads a .toml, .yaml or .yml file over Default. Only keys present in
// the file override defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	var defined func(key string) bool

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		defined = func(key string) bool { return meta.IsDefined(key) }
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		keys := map[string]any{}
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		defined = func(key string) bool { _, ok := keys[key]; return ok }
	default:
		return Config{}, fmt.Errorf("config: unsupported file type %q", path)
	}

	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func apply(cfg Config, raw fileConfig, defined func(string) bool) (Config, error) {
	if defined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if defined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if defined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if defined("probes") {
		cfg.Probes = normalizeList(raw.Probes)
	}
	if defined("backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if defined("backoff_jitter") {
		cfg.Backoff.Jitter = raw.BackoffJitter
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"tick_interval", raw.TickInterval, &cfg.TickInterval},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("config missing address")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	for key, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
		"write_timeout":   c.WriteTimeout,
		"idle_timeout":    c.IdleTimeout,
		"backoff_initial": c.Backoff.InitialDelay,
		"backoff_max":     c.Backoff.MaxDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func (c Config) Mux() mux.Config {
	return mux.Config{
		Name:           c.Name,
		Network:        "tcp",
		Address:        c.Address,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}

func (c Config) Driver() driver.Config {
	return driver.Config{
		Interval: c.TickInterval,
		Backoff:  c.Backoff,
	}
}

func (c Config) Peer() peer.Config {
	return peer.Config{
		Name:        c.Name,
		IdleTimeout: c.IdleTimeout,
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
