// Package webserver serves the item API, the list page and the live
// event stream that list clients bind to.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsprackett/tubewatch/internal/items"
	"github.com/zsprackett/tubewatch/internal/worker"
)

const DefaultPingInterval = 30 * time.Second

type Config struct {
	Host         string
	Port         int
	PingInterval time.Duration
	// TLS serves HTTPS with a self-signed certificate kept in CertDir.
	TLS     bool
	CertDir string
	// ExternalURL prefixes feed links. Empty uses the request's host.
	ExternalURL string
	FeedTitle   string
	Version     string
}

// Queue accepts download jobs.
type Queue interface {
	Submit(job worker.Job) error
	Full() bool
}

type Server struct {
	items   *items.Manager
	queue   Queue
	hub     *Hub
	cfg     Config
	logger  *slog.Logger
	engine  *gin.Engine
	started time.Time
}

func New(cfg Config, mgr *items.Manager, queue Queue, hub *Hub, logger *slog.Logger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		items:   mgr,
		queue:   queue,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		engine:  gin.New(),
		started: time.Now(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.StaticFS("/static", staticFiles())
	s.engine.GET("/events", s.handleEvents)
	s.engine.GET("/ws", s.handleWS)
	s.engine.GET("/audio/:id", s.handleAudio)
	s.engine.GET("/rss", s.handleFeed)
	s.engine.GET("/version", s.handleVersion)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.hub.registry, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/items", s.handleListItems)
	api.POST("/items", s.handleCreateItem)
	api.PUT("/items/:id/status", s.handleSetStatus)
	api.GET("/items/:id/events", s.handleItemEvents)
	api.DELETE("/items/:id", s.handleDeleteItem)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled. Open streams end with ctx.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if s.cfg.TLS {
		tlsCfg, err := selfSignedTLS(s.cfg.CertDir, s.cfg.Host)
		if err != nil {
			return fmt.Errorf("webserver: tls: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webserver: listening", "addr", srv.Addr, "tls", s.cfg.TLS)
		if s.cfg.TLS {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webserver: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("webserver: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start),
		)
	}
}
