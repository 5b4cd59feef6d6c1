package mux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Conn owns at most one live transport handle. Reconnect policy belongs to
// the caller; Conn only dials on demand and tears down on request.
type Conn struct {
	cfg Config

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func NewConn(cfg Config) *Conn {
	return &Conn{cfg: cfg.WithDefaults()}
}

// EnsureConnected returns the live handle, dialing if there is none.
func (c *Conn) EnsureConnected(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		RecordConnect(c.cfg.Name, false)
		log.Warn().Str("channel", c.cfg.Name).Str("addr", c.cfg.Address).Err(err).Msg("mux.Conn dial failed")
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, c.cfg.Address, err)
	}
	RecordConnect(c.cfg.Name, true)
	log.Debug().Str("channel", c.cfg.Name).Str("addr", c.cfg.Address).Msg("mux.Conn connected")
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return conn, nil
}

func (c *Conn) dial(ctx context.Context) (net.Conn, error) {
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	if c.cfg.Dial != nil {
		return c.cfg.Dial(ctx, c.cfg.Network, c.cfg.Address)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, c.cfg.Network, c.cfg.Address)
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Reader is the buffered reader over the live handle, nil when disconnected.
func (c *Conn) Reader() io.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil
	}
	return c.reader
}

// Teardown releases the handle. Safe to call when already disconnected.
func (c *Conn) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	log.Debug().Str("channel", c.cfg.Name).Msg("mux.Conn torn down")
	return err
}

func (c *Conn) setWriteDeadline(ctx context.Context, conn net.Conn) error {
	return conn.SetWriteDeadline(deadline(ctx, c.cfg.WriteTimeout))
}

func (c *Conn) setReadDeadline(ctx context.Context, conn net.Conn) error {
	return conn.SetReadDeadline(deadline(ctx, c.cfg.ReadTimeout))
}

// deadline picks the earlier of now+timeout and the context deadline. The
// zero time means no deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}
