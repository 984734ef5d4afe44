// deps.go — подключение к внешним зависимостям, общим для serve и worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/files-manager/internal/config"
	"github.com/bigkaa/goartstore/files-manager/internal/queue"
	"github.com/bigkaa/goartstore/files-manager/internal/service"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/sessionstore"
)

// connectTimeout — таймаут проверки Redis при старте.
const connectTimeout = 10 * time.Second

// deps — подключённые хранилища и очередь.
type deps struct {
	meta     *metastore.Store
	rdb      *redis.Client
	sessions *sessionstore.Store
	jobs     *queue.Queue
	blobs    *filestore.FileStore
	logger   *slog.Logger
}

// openDeps подключается к MongoDB и Redis. Ошибки конфигурации
// проявляются при старте, а не на первом запросе.
func openDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	meta, err := metastore.Connect(ctx, mongoDialInfo(cfg), logger)
	if err != nil {
		return nil, err
	}
	if err := meta.EnsureIndexes(ctx); err != nil {
		_ = meta.Close(context.Background())
		return nil, err
	}

	rdb := redis.NewClient(redisOptions(cfg))
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		_ = meta.Close(context.Background())
		return nil, fmt.Errorf("ping Redis %s: %w", cfg.RedisAddr(), err)
	}
	logger.Info("Подключение к Redis установлено", slog.String("addr", cfg.RedisAddr()))

	return &deps{
		meta:     meta,
		rdb:      rdb,
		sessions: sessionstore.New(rdb, cfg.SessionKeyPrefix),
		jobs: queue.New(rdb, queue.Config{
			Name:        cfg.QueueName,
			MaxAttempts: cfg.JobMaxAttempts,
			Backoff:     cfg.JobBackoff,
			Visibility:  cfg.JobVisibilityTimeout,
		}, logger),
		blobs:  filestore.New(cfg.FolderPath),
		logger: logger,
	}, nil
}

// Close закрывает соединения.
func (d *deps) Close() {
	if err := d.rdb.Close(); err != nil {
		d.logger.Warn("Ошибка закрытия Redis", slog.String("error", err.Error()))
	}
	if err := d.meta.Close(context.Background()); err != nil {
		d.logger.Warn("Ошибка закрытия MongoDB", slog.String("error", err.Error()))
	}
}

// startDephealth запускает мониторинг Redis и MongoDB.
// Ошибка topologymetrics не препятствует запуску: возвращается nil.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	svc, err := service.NewDephealthService(
		cfg.ServiceID,
		cfg.DephealthGroup,
		service.DephealthTargets{
			RedisURL:  cfg.RedisURL(),
			MongoHost: cfg.DBHost,
			MongoPort: cfg.DBPort,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}

func mongoDialInfo(cfg *config.Config) metastore.DialInfo {
	return metastore.DialInfo{
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		DBName: cfg.DBDatabase,
		User:   cfg.DBUser,
		Pwd:    cfg.DBPassword,
	}
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
