// dispatcher.go — неблокирующая публикация заданий со стороны загрузки.
//
// Dispatch кладёт задание в ограниченный буфер и сразу возвращает управление;
// фоновая горутина публикует задания в Job Channel. Переполнение буфера
// и ошибки публикации логируются и учитываются в метриках, но не
// возвращаются вызывающему.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты диспетчеризации для метки result.
const (
	DispatchQueued    = "queued"
	DispatchDropped   = "dropped"
	DispatchPublished = "published"
	DispatchFailed    = "failed"
)

// dispatchTotal — количество заданий по результату диспетчеризации.
var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fm_thumbnail_dispatch_total",
	Help: "Количество заданий миниатюр по результату диспетчеризации",
}, []string{"result"})

// Publisher — получатель заданий (Queue или тестовая реализация).
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Dispatcher — ограниченный буфер перед Publisher.
type Dispatcher struct {
	pub     Publisher
	jobs    chan any
	timeout time.Duration
	logger  *slog.Logger

	// mu согласует Dispatch с остановкой: после drain ни одно
	// принятое задание не остаётся в буфере.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher создаёт диспетчер с буфером на buffer заданий.
// publishTimeout ограничивает одну публикацию.
func NewDispatcher(pub Publisher, buffer int, publishTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Dispatcher{
		pub:     pub,
		jobs:    make(chan any, buffer),
		timeout: publishTimeout,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch ставит задание в буфер. Не блокируется: при заполненном
// буфере задание отбрасывается с записью в лог. Возвращает true,
// если задание принято.
func (d *Dispatcher) Dispatch(job any) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		dispatchTotal.WithLabelValues(DispatchDropped).Inc()
		d.logger.Warn("Диспетчер остановлен, задание отброшено", slog.Any("job", job))
		return false
	}

	select {
	case d.jobs <- job:
		dispatchTotal.WithLabelValues(DispatchQueued).Inc()
		return true
	default:
		dispatchTotal.WithLabelValues(DispatchDropped).Inc()
		d.logger.Warn("Буфер заданий переполнен, задание отброшено", slog.Any("job", job))
		return false
	}
}

// Run публикует задания из буфера до отмены ctx. После отмены
// оставшиеся в буфере задания публикуются с отдельным таймаутом.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Диспетчер заданий запущен", slog.Int("buffer", cap(d.jobs)))

	for {
		select {
		case job := <-d.jobs:
			d.publish(ctx, job)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// drain закрывает приём и публикует остаток буфера.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	n := 0
	for {
		select {
		case job := <-d.jobs:
			d.publish(context.Background(), job)
			n++
		default:
			d.logger.Info("Диспетчер заданий остановлен", slog.Int("drained", n))
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, job any) {
	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.pub.Publish(pubCtx, job); err != nil {
		dispatchTotal.WithLabelValues(DispatchFailed).Inc()
		d.logger.Error("Ошибка публикации задания",
			slog.Any("job", job),
			slog.String("error", err.Error()),
		)
		return
	}
	dispatchTotal.WithLabelValues(DispatchPublished).Inc()
}
