// Package peer is a reference responder for the framing protocol: it reads
// one request frame, answers with exactly one response frame, and keeps
// send order per connection.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/framemux/internal/protocol/codec"
	"github.com/danmuck/framemux/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrHandlerRequired = errors.New("peer: handler required")

// HandlerFunc answers one decoded request.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

type Config struct {
	Name        string
	IdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Name:        "peer",
		IdleTimeout: 5 * time.Minute,
	}
}

type Server[Req, Resp any] struct {
	cfg       Config
	reqCodec  codec.Codec[Req]
	respCodec codec.Codec[Resp]
	handle    HandlerFunc[Req, Resp]

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer[Req, Resp any](cfg Config, reqCodec codec.Codec[Req], respCodec codec.Codec[Resp], handle HandlerFunc[Req, Resp]) (*Server[Req, Resp], error) {
	if handle == nil {
		return nil, ErrHandlerRequired
	}
	if reqCodec == nil || respCodec == nil {
		return nil, fmt.Errorf("peer: %q requires request and response codecs", cfg.Name)
	}
	return &Server[Req, Resp]{
		cfg:       cfg,
		reqCodec:  reqCodec,
		respCodec: respCodec,
		handle:    handle,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until ctx is done or ln is closed. Open
// connections are closed on return.
func (s *Server[Req, Resp]) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer s.closeAll()

	log.Info().Str("peer", s.cfg.Name).Str("addr", ln.Addr().String()).Msg("peer.Server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			if err := s.serveConn(ctx, conn); err != nil {
				log.Warn().Str("peer", s.cfg.Name).Str("remote", conn.RemoteAddr().String()).Err(err).Msg("peer.Server connection dropped")
			}
		}()
	}
}

func (s *Server[Req, Resp]) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
	_ = conn.Close()
}

func (s *Server[Req, Resp]) closeAll() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// serveConn answers frames strictly in arrival order. A clean EOF between
// frames is a normal disconnect.
func (s *Server[Req, Resp]) serveConn(ctx context.Context, conn net.Conn) error {
	for {
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return err
			}
		}
		fr, err := frame.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if err := frame.ExpectKind(fr.Header, frame.KindRequest); err != nil {
			return err
		}
		req, err := s.reqCodec.Unmarshal(fr.Payload)
		if err != nil {
			return err
		}
		resp, err := s.handle(ctx, req)
		if err != nil {
			return fmt.Errorf("peer: handler: %w", err)
		}
		payload, err := s.respCodec.Marshal(resp)
		if err != nil {
			return err
		}
		h, err := frame.NewHeader(frame.KindResponse, payload)
		if err != nil {
			return err
		}
		if err := frame.WriteFrame(conn, frame.Frame{Header: h, Payload: payload}); err != nil {
			return err
		}
	}
}
