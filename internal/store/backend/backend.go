// Package backend opens the store.Store named by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/boltstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/memstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/redisstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/redis"
)

// Open connects to the configured backend.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	logger := slog.Default().With("component", "store", "backend", cfg.Store.Backend)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory store, data will not survive restart")
		return memstore.New(), nil

	case config.BackendRedis:
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected", "addr", cfg.Redis.Addr)
		return redisstore.New(client, cfg.Redis.Prefix), nil

	case config.BackendBolt:
		if dir := filepath.Dir(cfg.Bolt.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating bolt directory: %w", err)
			}
		}
		st, err := boltstore.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened", "path", cfg.Bolt.Path)
		return st, nil

	case config.BackendPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st, err := pgstore.New(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
