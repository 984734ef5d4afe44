// worker.go — команда worker: генерация миниатюр из очереди заданий.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/files-manager/internal/api/handlers"
	"github.com/bigkaa/goartstore/files-manager/internal/config"
	"github.com/bigkaa/goartstore/files-manager/internal/queue"
	"github.com/bigkaa/goartstore/files-manager/internal/server"
	"github.com/bigkaa/goartstore/files-manager/internal/service"
)

// queueStatsTimeout — таймаут запроса к Redis при сборе метрик очереди.
const queueStatsTimeout = 2 * time.Second

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Files Manager worker запускается",
		slog.String("version", config.Version),
		slog.String("queue", cfg.QueueName),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)

	d, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if dephealthSvc := startDephealth(ctx, cfg, logger); dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	prometheus.MustRegister(queue.NewStatsCollector(d.jobs, queueStatsTimeout, logger))
	registerDiskMetrics(cfg.FolderPath, logger)

	thumbnails := service.NewThumbnailService(d.meta, d.blobs, logger)
	pool := service.NewWorkerPool(d.jobs, thumbnails.Handle, cfg.WorkerConcurrency, logger)

	// Probes и /metrics на отдельном порту
	health := handlers.NewHealthHandler("files-manager-worker", d.blobs.Root(),
		handlers.Dependency{Name: "mongodb", Pinger: d.meta},
		handlers.Dependency{Name: "redis", Pinger: d.sessions},
	)
	srv := server.New(server.Config{
		Addr:            ":" + strconv.Itoa(cfg.WorkerMetricsPort),
		ReadTimeout:     cfg.HTTPReadTimeout,
		WriteTimeout:    cfg.HTTPWriteTimeout,
		IdleTimeout:     cfg.HTTPIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handlers.NewProbeRouter(health, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	logger.Info("Files Manager worker остановлен")
	return nil
}
