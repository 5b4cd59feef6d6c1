package mux

import (
	"context"
	"net"
	"time"
)

// DialFunc establishes one transport connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config defines one channel's transport settings.
type Config struct {
	Name           string
	Network        string
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Dial overrides net.Dialer, mostly for tests.
	Dial DialFunc
}

func DefaultConfig() Config {
	return Config{
		Name:           "default",
		Network:        "tcp",
		Address:        "127.0.0.1:8080",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. Address is left
// alone so a missing address is still reported.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Network == "" {
		c.Network = def.Network
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}
