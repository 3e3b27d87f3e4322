package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/database"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

// Open creates the configured backend and wraps it with the single-writer lock
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Serialized, error) {
	logger = logger.With(zap.String("store_backend", cfg.Store.Backend))

	var backend Store
	switch cfg.Store.Backend {
	case config.BackendFile:
		fs, err := OpenFile(cfg.Store.FilePath, logger)
		if err != nil {
			return nil, err
		}
		backend = fs

	case config.BackendSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		backend = NewSQL(db, logger)

	case config.BackendPostgres:
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
			db.Close()
			return nil, err
		}
		backend = NewSQL(db, logger)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		backend = NewRedis(client, cfg.Store.RedisKey, logger)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	logger.Info("store opened")
	return Serialize(backend), nil
}
