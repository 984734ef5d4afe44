// disk_usage.go — метрики ёмкости диска корня Blob Store.
// Платформозависимый код для Unix-подобных систем.
package main

import (
	"fmt"
	"log/slog"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// getDiskUsage возвращает информацию о дисковом пространстве в директории.
// Возвращает total, used, available в байтах.
func getDiskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	used = total - available

	return total, used, available, nil
}

// registerDiskMetrics регистрирует fm_storage_disk_bytes{type} для корня Blob Store.
// Значение читается при каждом scrape; недоступная директория даёт 0.
func registerDiskMetrics(path string, logger *slog.Logger) {
	value := func(pick func(total, used, available int64) int64) func() float64 {
		return func() float64 {
			total, used, available, err := getDiskUsage(path)
			if err != nil {
				logger.Debug("Ёмкость диска недоступна", slog.String("error", err.Error()))
				return 0
			}
			return float64(pick(total, used, available))
		}
	}

	for kind, pick := range map[string]func(total, used, available int64) int64{
		"total":     func(t, _, _ int64) int64 { return t },
		"used":      func(_, u, _ int64) int64 { return u },
		"available": func(_, _, a int64) int64 { return a },
	} {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "fm_storage_disk_bytes",
			Help:        "Ёмкость диска корня хранилища в байтах",
			ConstLabels: prometheus.Labels{"type": kind},
		}, value(pick))
	}
}
