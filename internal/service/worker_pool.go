// worker_pool.go — пул потребителей очереди заданий миниатюр.
// Потребители независимы и не разделяют состояния; координация — только
// через очередь.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/files-manager/internal/queue"
)

// JobConsumer — источник заданий (queue.Queue).
type JobConsumer interface {
	Consume(ctx context.Context, handler queue.Handler) error
	RecoverProcessing(ctx context.Context) (int, error)
}

// WorkerPool запускает concurrency потребителей с общим обработчиком.
type WorkerPool struct {
	consumer    JobConsumer
	handler     queue.Handler
	concurrency int
	logger      *slog.Logger
}

// NewWorkerPool создаёт пул. concurrency < 1 трактуется как 1.
func NewWorkerPool(consumer JobConsumer, handler queue.Handler, concurrency int, logger *slog.Logger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		consumer:    consumer,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "worker_pool")),
	}
}

// Run возвращает в очередь задания с истёкшей арендой и обрабатывает
// задания до отмены ctx. Ошибка одного потребителя останавливает остальных.
func (p *WorkerPool) Run(ctx context.Context) error {
	if _, err := p.consumer.RecoverProcessing(ctx); err != nil {
		return fmt.Errorf("восстановление заданий: %w", err)
	}

	p.logger.Info("Пул обработчиков запущен", slog.Int("concurrency", p.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.concurrency {
		g.Go(func() error {
			if err := p.consumer.Consume(gctx, p.handler); err != nil {
				return fmt.Errorf("обработчик %d: %w", i, err)
			}
			return nil
		})
	}

	err := g.Wait()
	p.logger.Info("Пул обработчиков остановлен")
	return err
}
