package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search/handler"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/backend"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "table", cfg.Store.Table)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	pool := store.NewPool(st, cfg.Store.MaxIdle)
	defer pool.Close()

	sch := schema.Default()
	var c codec.Codec
	err = pool.With(ctx, cfg.Store.Table, func(t store.Table) error {
		c, err = txlog.RecordedCodec(ctx, t, sch)
		return err
	})
	if err != nil {
		slog.Error("failed to read index codec", "table", cfg.Store.Table, "error", err)
		os.Exit(1)
	}
	slog.Info("index opened", "table", cfg.Store.Table, "codec", c.Name())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	searcher := search.New(pool, cfg.Store.Table, sch, c,
		search.WithDefaultField(cfg.Search.DefaultField),
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxResults),
		search.WithFetchParallel(cfg.Search.FetchParallel),
		search.WithMetrics(m),
	)
	h := handler.New(searcher)

	checker := health.NewChecker()
	checker.Register("store", health.TableCheck(st, cfg.Store.Table))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/documents/{key}", h.Document)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Index(cfg.Store.Table)(chain)
	chain = middleware.Trace(chain)
	chain = middleware.Metrics(m)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
