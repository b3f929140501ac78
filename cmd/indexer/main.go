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
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/backend"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
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
	slog.Info("starting indexer service",
		"backend", cfg.Store.Backend,
		"table", cfg.Store.Table,
		"codec", cfg.Store.Codec,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := codec.ByName(cfg.Store.Codec)
	if err != nil {
		slog.Error("invalid codec", "error", err)
		os.Exit(1)
	}

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	pool := store.NewPool(st, cfg.Store.MaxIdle)
	defer pool.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	flushProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SegmentFlushed)
	defer flushProducer.Close()

	log := txlog.New(pool, cfg.Store.Table,
		txlog.WithCodec(c),
		txlog.WithMaxTermVector(cfg.Index.MaxTermVector),
		txlog.WithFlushListener(indexer.NewFlushPublisher(cfg.Store.Table, flushProducer)),
		txlog.WithMetrics(m),
	)
	if err := openOrInit(ctx, log); err != nil {
		slog.Error("failed to attach to index", "error", err)
		os.Exit(1)
	}
	defer log.Close()

	engine := indexer.NewEngine(log,
		indexer.WithIndexedFields(cfg.Index.IndexedFields...),
		indexer.WithCommitRetry(cfg.Index.CommitRetries, cfg.Index.RetryDelay),
		indexer.WithMetrics(m),
	)

	checker := health.NewChecker()
	checker.Register("store", health.TableCheck(st, cfg.Store.Table))
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET /health/live", checker.LiveHandler())
	healthMux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleMessage(cfg.Store.Table, engine),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	slog.Info("flushing segment before shutdown")
	if _, err := engine.Flush(shutdownCtx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("indexer service stopped")
}

// openOrInit attaches to an existing index table, creating it on first run.
func openOrInit(ctx context.Context, log *txlog.Log) error {
	err := log.Open(ctx)
	if !apperrors.Is(err, apperrors.ErrTableNotFound) {
		return err
	}
	slog.Info("index table not found, initializing", "table", log.Name())
	return log.Init(ctx)
}
