// collector.go — Prometheus collector длин списков очереди.
// Значения читаются из Redis при каждом scrape.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource — источник длин списков (Queue).
type StatsSource interface {
	Name() string
	Stats(ctx context.Context) (Stats, error)
}

// StatsCollector экспортирует fm_queue_jobs{queue, state}.
type StatsCollector struct {
	source  StatsSource
	timeout time.Duration
	desc    *prometheus.Desc
	logger  *slog.Logger
}

// NewStatsCollector создаёт collector. timeout ограничивает запрос к Redis.
func NewStatsCollector(source StatsSource, timeout time.Duration, logger *slog.Logger) *StatsCollector {
	return &StatsCollector{
		source:  source,
		timeout: timeout,
		desc: prometheus.NewDesc(
			"fm_queue_jobs",
			"Количество заданий в очереди по состоянию",
			[]string{"queue", "state"},
			nil,
		),
		logger: logger.With(slog.String("component", "queue_collector")),
	}
}

// Describe реализует prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect реализует prometheus.Collector.
// При ошибке Redis метрики не отдаются.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		c.logger.Warn("Ошибка чтения статистики очереди", slog.String("error", err.Error()))
		return
	}

	name := c.source.Name()
	for state, v := range map[string]int64{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"delayed":    stats.Delayed,
		"dead":       stats.Dead,
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(v), name, state)
	}
}
