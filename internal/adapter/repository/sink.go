// Package repository opens the configured storage backend.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	goredis "github.com/redis/go-redis/v9"

	"github.com/V4T54L/logflow/internal/adapter/repository/kafka"
	"github.com/V4T54L/logflow/internal/adapter/repository/postgres"
	"github.com/V4T54L/logflow/internal/adapter/repository/redis"
	"github.com/V4T54L/logflow/internal/adapter/repository/sqlite"
	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/config"
)

// Sink is an opened storage backend. Admin is nil for backends without
// stream administration.
type Sink struct {
	domain.BatchStorageSink
	Admin   domain.StreamAdminRepository
	closers []func() error
}

// Close releases the backend's connections.
func (s *Sink) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenSink connects to the backend selected by cfg.SinkBackend.
func OpenSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Sink, error) {
	switch strings.ToLower(cfg.SinkBackend) {
	case config.SinkPostgres:
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		repo := postgres.NewSinkRepository(db, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Sink{BatchStorageSink: repo, closers: []func() error{db.Close}}, nil

	case config.SinkRedis:
		opts, err := redisOptions(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		repo := redis.NewSinkRepository(client, cfg.RedisStreamMaxLen, logger)
		if err := repo.Ping(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return &Sink{
			BatchStorageSink: repo,
			Admin:            redis.NewAdminRepository(client, logger),
			closers:          []func() error{client.Close},
		}, nil

	case config.SinkKafka:
		repo := kafka.NewSinkRepository(kafka.NewWriter(cfg.KafkaBrokers), logger)
		return &Sink{BatchStorageSink: repo, closers: []func() error{repo.Close}}, nil

	case config.SinkSQLite:
		repo, err := sqlite.NewSinkRepository(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Sink{BatchStorageSink: repo, closers: []func() error{repo.Close}}, nil
	}
	return nil, fmt.Errorf("unknown sink backend %q", cfg.SinkBackend)
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) (*goredis.Options, error) {
	if strings.Contains(addr, "://") {
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &goredis.Options{Addr: addr}, nil
}
