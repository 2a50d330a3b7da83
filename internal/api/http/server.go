// Package http serves the storage context over a hertz HTTP API.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/Zereker/storekit/pkg/log"
)

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server represents an HTTP server
type Server struct {
	logger *slog.Logger
	hertz  *server.Hertz
}

// NewServer creates a hertz server with the handler routes registered.
func NewServer(handler *Handler, config ServerConfig) *Server {
	logger := log.Logger("http")

	h := server.New(
		server.WithHostPorts(fmt.Sprintf("%s:%d", config.Host, config.Port)),
		server.WithReadTimeout(config.ReadTimeout),
		server.WithWriteTimeout(config.WriteTimeout),
		server.WithExitWaitTime(5*time.Second),
		server.WithDisablePrintRoute(true),
	)
	h.Use(recovery.Recovery(), accessLog(logger))
	handler.RegisterRoutes(h)

	return &Server{logger: logger, hertz: h}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server")
	return s.hertz.Run()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.hertz.Shutdown(ctx)
}

func accessLog(logger *slog.Logger) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		logger.Info("request",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"duration", time.Since(start).Milliseconds(),
			"remote", c.ClientIP(),
		)
	}
}
