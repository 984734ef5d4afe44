// handler.go — APIHandler собирает доменные handlers и монтирует
// их в chi-роутер вместе с middleware.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/files-manager/internal/api/middleware"
	"github.com/bigkaa/goartstore/files-manager/internal/auth"
)

// APIHandler — все endpoints процесса serve.
type APIHandler struct {
	files       *FilesHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	files *FilesHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		files:       files,
		system:      system,
		maintenance: maintenance,
		health:      health,
	}
}

// Router возвращает роутер процесса serve.
// validate — проверка запросов /api/v1 по OpenAPI контракту (nil — без проверки).
// authz — проверка scope служебных endpoints (nil — они закрыты).
func (h *APIHandler) Router(
	validate func(http.Handler) http.Handler,
	authz middleware.ScopeAuthorizer,
	logger *slog.Logger,
) chi.Router {
	r := newBaseRouter(h.health, logger)

	r.Route("/api/v1", func(r chi.Router) {
		if validate != nil {
			r.Use(validate)
		}

		r.Post("/files", h.files.UploadFile)
		r.Get("/files", h.files.ListFiles)
		r.Get("/files/{id}", h.files.ShowFile)
		r.Get("/files/{id}/data", h.files.DownloadFile)

		r.Get("/status", h.system.GetStatus)
		r.Get("/stats", h.system.GetStats)

		r.With(middleware.RequireScope(authz, auth.ScopeMaintenance, logger)).
			Post("/maintenance/reconcile", h.maintenance.Reconcile)
	})

	return r
}

// NewProbeRouter возвращает роутер процесса worker: только probes и /metrics.
func NewProbeRouter(health *HealthHandler, logger *slog.Logger) chi.Router {
	return newBaseRouter(health, logger)
}

// newBaseRouter — middleware, health probes и Prometheus /metrics.
func newBaseRouter(health *HealthHandler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())

	r.Get("/health/live", health.HealthLive)
	r.Get("/health/ready", health.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
