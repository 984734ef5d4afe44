// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/files-manager/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// pingTimeout — таймаут проверки одной зависимости.
const pingTimeout = 2 * time.Second

// Pinger — зависимость, доступность которой проверяется ping-ом.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency — именованная зависимость для readiness.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	service string
	// dataDir — корень Blob Store (проверка записи)
	dataDir string
	deps    []Dependency
}

// NewHealthHandler создаёт обработчик health endpoints.
// service — имя процесса в ответе (files-manager, files-manager-worker).
func NewHealthHandler(service, dataDir string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		service: service,
		dataDir: dataDir,
		deps:    deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   h.service,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: запись в корень Blob Store, ping каждой зависимости.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := map[string]any{
		"filesystem": h.checkFilesystem(),
	}
	for _, dep := range h.deps {
		checks[dep.Name] = checkPing(r.Context(), dep.Pinger)
	}

	for _, c := range checks {
		if c.(map[string]any)["status"] != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   h.service,
		"checks":    checks,
	})
}

// checkFilesystem проверяет доступность корня Blob Store на запись.
// Отсутствующий корень создаётся, как при первой записи blob-а.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.dataDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := os.MkdirAll(h.dataDir, 0o750); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория хранения недоступна: " + err.Error(),
		}
	}

	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория хранения недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkPing проверяет зависимость с таймаутом.
func checkPing(ctx context.Context, p Pinger) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
	}
	return map[string]any{
		"status": "ok",
	}
}
