package server

import (
	"context"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/storekit/internal/api/consumer"
	"github.com/Zereker/storekit/internal/api/http"
	"github.com/Zereker/storekit/internal/api/mcp"
	genkitpkg "github.com/Zereker/storekit/pkg/genkit"
	"github.com/Zereker/storekit/pkg/log"
	"github.com/Zereker/storekit/pkg/metrics"
	"github.com/Zereker/storekit/pkg/mq"
	"github.com/Zereker/storekit/pkg/storage"
	"github.com/Zereker/storekit/pkg/vector"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// Server represents the storekit server
type Server struct {
	config   Config
	logger   *slog.Logger
	storage  *storage.Context
	embedder genkitpkg.Embedder
	producer *mq.KafkaProducer
	consumer *consumer.Consumer
	registry *prometheus.Registry
}

// NewServer creates a new server with the given configuration
func NewServer(ctx context.Context, conf Config) (*Server, error) {
	server := &Server{
		config: conf,
	}

	if err := server.initDepend(ctx); err != nil {
		return nil, errors.WithMessage(err, "init server dependency failed")
	}

	if err := server.initStorage(ctx); err != nil {
		return nil, errors.WithMessage(err, "init storage failed")
	}

	if err := server.initConsumer(); err != nil {
		return nil, errors.WithMessage(err, "init consumer failed")
	}

	return server, nil
}

// initDepend initializes logging, embedders, metrics and the event producer
func (s *Server) initDepend(ctx context.Context) error {
	// stdout carries the MCP protocol in mcp and both modes
	if s.config.Server.Mode != "http" {
		s.config.Log.Stderr = true
	}
	if err := log.Init(s.config.Log); err != nil {
		return errors.WithMessage(err, "failed to init log")
	}

	s.logger = log.Logger("server")
	s.logger.Info("initializing dependencies")

	if s.config.Models.Enabled() {
		s.logger.Info("initializing genkit embedders", "embedder", s.config.Models.Embedder)
		if err := genkitpkg.Init(ctx, s.config.Models); err != nil {
			return errors.WithMessage(err, "failed to init models")
		}
		s.embedder = genkitpkg.NewEmbedder(genkitpkg.Genkit(), s.config.Models.Embedder, s.config.Models.Dim())
	}

	if s.config.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	if s.config.Kafka.Enabled && s.config.Kafka.EventsTopic != "" {
		s.logger.Info("initializing event producer", "topic", s.config.Kafka.EventsTopic)
		producer, err := mq.NewKafkaProducer(s.config.Kafka)
		if err != nil {
			return errors.WithMessage(err, "failed to init kafka producer")
		}
		s.producer = producer
	}

	return nil
}

// initStorage builds the storage context and decorates its vector store
func (s *Server) initStorage(ctx context.Context) error {
	s.logger.Info("initializing storage", "persist_dir", s.config.Storage.PersistDir)

	sc, err := storage.FromDefaults(ctx, s.config.Storage)
	if err != nil {
		return errors.WithMessage(err, "failed to build storage context")
	}

	backend := s.config.Storage.Vector.Type
	if backend == "" {
		backend = vector.TypeSimple
	}

	if s.registry != nil {
		mc := metrics.New()
		mc.MustRegister(s.registry)
		sc.VectorStore = vector.WithMetrics(sc.VectorStore, mc, backend)
	}
	if s.producer != nil {
		sc.VectorStore = vector.WithEvents(sc.VectorStore, s.producer, s.config.Kafka.EventsTopic)
	}

	s.storage = sc
	return nil
}

// initConsumer initializes the command consumer
func (s *Server) initConsumer() error {
	s.logger.Info("initializing consumer")

	c, err := consumer.NewConsumer(s.storage, consumer.Config{
		Kafka: s.config.Kafka,
	})
	if err != nil {
		return errors.WithMessage(err, "failed to create consumer")
	}

	s.consumer = c
	return nil
}

// Start starts the server based on configuration mode
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting", "mode", s.config.Server.Mode, "port", s.config.Server.Port)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	// Start consumer
	if s.consumer != nil {
		g.Go(func() error {
			return s.runConsumer(ctx)
		})
	}

	switch s.config.Server.Mode {
	case "http":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
	case "mcp":
		g.Go(func() error {
			return s.runMCPServer(ctx)
		})
	case "both":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
		g.Go(func() error {
			return s.runMCPServer(ctx)
		})
	default:
		return errors.Errorf("unknown mode: %s", s.config.Server.Mode)
	}

	return g.Wait()
}

// Shutdown persists and releases every dependency
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	// Stop consumer
	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
		}
	}

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("failed to close producer", "error", err)
		}
	}

	if s.storage == nil {
		return nil
	}

	if s.config.Server.PersistOnShutdown {
		if err := s.storage.Persist(""); err != nil {
			s.logger.Error("failed to persist storage", "error", err)
		}
	}

	return s.storage.Close()
}

func (s *Server) runHTTPServer(ctx context.Context) error {
	serverCfg := http.DefaultServerConfig()
	if s.config.Server.Host != "" {
		serverCfg.Host = s.config.Server.Host
	}
	serverCfg.Port = s.config.Server.Port

	opts := []http.Option{}
	if s.embedder != nil {
		opts = append(opts, http.WithEmbedder(s.embedder))
	}
	if s.registry != nil {
		opts = append(opts,
			http.WithMetricsHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})),
			http.WithMetricsPath(s.config.Metrics.Path),
		)
	}

	srv := http.NewServer(http.NewHandler(s.storage, opts...), serverCfg)

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return errors.WithMessage(err, "http server error")
	}
	return nil
}

func (s *Server) runMCPServer(ctx context.Context) error {
	server := mcp.NewServer(s.storage, s.embedder, mcp.ServerConfig{
		Name:    "storekit",
		Version: Version,
	})

	if err := server.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.WithMessage(err, "mcp server error")
	}
	return nil
}

func (s *Server) runConsumer(ctx context.Context) error {
	if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.WithMessage(err, "consumer start error")
	}

	// Wait for context cancellation, Shutdown stops the consumers
	<-ctx.Done()
	return nil
}
