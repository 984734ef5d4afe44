// system.go — обработчики GET /api/v1/status и GET /api/v1/stats.
// Публичные endpoints (без аутентификации) для мониторинга.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/files-manager/internal/api/errors"
)

// StatsCounter — источник счётчиков пользователей и файлов.
type StatsCounter interface {
	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (int64, error)
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	redis  Pinger
	db     Pinger
	stats  StatsCounter
	logger *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(redis, db Pinger, stats StatsCounter, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		redis:  redis,
		db:     db,
		stats:  stats,
		logger: logger.With(slog.String("component", "system_handler")),
	}
}

// GetStatus обрабатывает GET /api/v1/status.
// Всегда 200: {"redis": bool, "db": bool}.
func (h *SystemHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"redis": isAlive(r.Context(), h.redis),
		"db":    isAlive(r.Context(), h.db),
	})
}

// GetStats обрабатывает GET /api/v1/stats: {"users": n, "files": n}.
func (h *SystemHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	users, err := h.stats.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("Ошибка подсчёта пользователей", slog.String("error", err.Error()))
		apierrors.InternalError(w)
		return
	}

	files, err := h.stats.CountFiles(r.Context())
	if err != nil {
		h.logger.Error("Ошибка подсчёта файлов", slog.String("error", err.Error()))
		apierrors.InternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"users": users,
		"files": files,
	})
}

func isAlive(ctx context.Context, p Pinger) bool {
	return checkPing(ctx, p)["status"] == "ok"
}
