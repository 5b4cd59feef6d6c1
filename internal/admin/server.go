// Package admin serves a read-only HTTP view of running channels.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/framemux/internal/mux"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ChannelView is the type-erased slice of a mux.Channel the admin surface
// reads.
type ChannelView interface {
	Name() string
	State() mux.State
	Connected() bool
	Counts() (pending, resolved int)
	Lookup(id uuid.UUID) (mux.Status, any)
}

type Config struct {
	Addr        string
	CorsOrigins []string
}

type Server struct {
	cfg      Config
	router   *gin.Engine
	started  time.Time
	mu       sync.RWMutex
	channels map[string]ChannelView
}

func New(cfg Config, views ...ChannelView) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Logger))
	r.Use(requestMetrics())
	if origins := normalizeOrigins(cfg.CorsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		cfg:      cfg,
		router:   r,
		started:  time.Now(),
		channels: make(map[string]ChannelView),
	}
	for _, v := range views {
		s.Register(v)
	}
	s.routes()
	return s
}

func (s *Server) Register(v ChannelView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[v.Name()] = v
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/channels/:channel", s.channel)
	s.router.GET("/channels/:channel/requests/:id", s.request)
}

type channelStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Pending   int    `json:"pending"`
	Resolved  int    `json:"resolved"`
}

func statusOf(v ChannelView) channelStatus {
	pending, resolved := v.Counts()
	return channelStatus{
		Name:      v.Name(),
		State:     v.State().String(),
		Connected: v.Connected(),
		Pending:   pending,
		Resolved:  resolved,
	}
}

func (s *Server) health(c *gin.Context) {
	s.mu.RLock()
	out := make([]channelStatus, 0, len(s.channels))
	for _, v := range s.channels {
		out = append(out, statusOf(v))
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).String(),
		"channels": out,
	})
}

func (s *Server) lookupChannel(c *gin.Context) (ChannelView, bool) {
	s.mu.RLock()
	v, ok := s.channels[c.Param("channel")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
	}
	return v, ok
}

func (s *Server) channel(c *gin.Context) {
	v, ok := s.lookupChannel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusOf(v))
}

func (s *Server) request(c *gin.Context) {
	v, ok := s.lookupChannel(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	status, resp := v.Lookup(id)
	body := gin.H{"id": id.String(), "status": status.String()}
	if status == mux.StatusResolved {
		body["response"] = resp
	}
	code := http.StatusOK
	if status == mux.StatusUnknown {
		code = http.StatusNotFound
	}
	c.JSON(code, body)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("admin.Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
