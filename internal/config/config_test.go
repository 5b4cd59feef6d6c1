package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/framemux/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOMLOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "muxctl.toml", `
name = "state-query"
address = "10.0.0.5:8080"
tick_interval = "16ms"
read_timeout = "2s"
backoff_initial = "100ms"
backoff_jitter = false
probes = ["ping", " ", "pong"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "state-query" || cfg.Address != "10.0.0.5:8080" {
		t.Fatalf("identity mismatch: %+v", cfg)
	}
	if cfg.TickInterval != 16*time.Millisecond || cfg.ReadTimeout != 2*time.Second {
		t.Fatalf("durations mismatch: tick=%v read=%v", cfg.TickInterval, cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != Default().WriteTimeout {
		t.Fatalf("undefined write_timeout should keep default, got %v", cfg.WriteTimeout)
	}
	if cfg.Backoff.InitialDelay != 100*time.Millisecond || cfg.Backoff.Jitter {
		t.Fatalf("backoff mismatch: %+v", cfg.Backoff)
	}
	if cfg.Backoff.Multiplier != Default().Backoff.Multiplier {
		t.Fatalf("undefined multiplier should keep default, got %v", cfg.Backoff.Multiplier)
	}
	if strings.Join(cfg.Probes, ",") != "ping,pong" {
		t.Fatalf("probes=%v", cfg.Probes)
	}

	m := cfg.Mux()
	if m.Address != cfg.Address || m.ReadTimeout != 2*time.Second || m.Network != "tcp" {
		t.Fatalf("mux config mismatch: %+v", m)
	}
	if cfg.Driver().Interval != 16*time.Millisecond {
		t.Fatalf("driver interval=%v", cfg.Driver().Interval)
	}
}

func TestLoadYAML(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "muxctl.yaml", `
name: rpc
address: 127.0.0.1:9999
admin_addr: 127.0.0.1:9090
cors_origins:
  - http://localhost:3000
backoff_multiplier: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "rpc" || cfg.AdminAddr != "127.0.0.1:9090" {
		t.Fatalf("yaml mismatch: %+v", cfg)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://localhost:3000" {
		t.Fatalf("cors=%v", cfg.CorsOrigins)
	}
	if cfg.Backoff.Multiplier != 3 {
		t.Fatalf("multiplier=%v", cfg.Backoff.Multiplier)
	}
	if cfg.TickInterval != Default().TickInterval {
		t.Fatalf("tick default lost: %v", cfg.TickInterval)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad_duration.toml": `read_timeout = "soon"`,
		"empty_addr.toml":   `address = ""`,
		"zero_tick.toml":    `tick_interval = "0s"`,
		"negative.yaml":     "write_timeout: -1s\n",
		"unknown.ini":       "address=x",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, name, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
