// serve.go — команда serve: HTTP API Files Manager.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bigkaa/goartstore/files-manager/internal/api/handlers"
	"github.com/bigkaa/goartstore/files-manager/internal/api/middleware"
	"github.com/bigkaa/goartstore/files-manager/internal/api/openapi"
	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/config"
	"github.com/bigkaa/goartstore/files-manager/internal/queue"
	"github.com/bigkaa/goartstore/files-manager/internal/server"
	"github.com/bigkaa/goartstore/files-manager/internal/service"
)

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Files Manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("folder_path", cfg.FolderPath),
	)

	// 1. Хранилища и очередь
	d, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	// 2. Разрешение токенов: сессии Redis, опционально JWT.
	// Служебные endpoints требуют JWT со scope files:maintenance.
	var (
		jwtChain auth.Resolver
		authz    middleware.ScopeAuthorizer
	)
	if jwtResolver := buildJWTResolver(cfg, logger); jwtResolver != nil {
		jwtChain = jwtResolver
		authz = jwtResolver
	}
	resolver := auth.NewChain(auth.NewSessionResolver(d.sessions), jwtChain)

	// 3. Диспетчер заданий миниатюр. Останавливается после HTTP-сервера,
	// чтобы задания завершающихся запросов попали в очередь.
	dispatcher := queue.NewDispatcher(d.jobs, cfg.DispatchBuffer, 0, logger)
	dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatchDone)
	}()
	defer func() {
		stopDispatcher()
		<-dispatchDone
	}()

	// 4. Сервисы
	uploadSvc := service.NewUploadService(d.meta, d.blobs, resolver, dispatcher, logger)
	cacheSvc := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	downloadSvc := service.NewDownloadService(d.meta, d.blobs, resolver, cacheSvc, logger)

	// 5. Фоновые процессы
	reconcileSvc := service.NewReconcileService(d.meta, d.blobs, cfg.ReconcileInterval, cfg.OrphanGracePeriod, logger)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	if dephealthSvc := startDephealth(ctx, cfg, logger); dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	registerDiskMetrics(cfg.FolderPath, logger)

	// 6. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, downloadSvc, logger),
		handlers.NewSystemHandler(d.sessions, d.meta, d.meta, logger),
		handlers.NewMaintenanceHandler(reconcileSvc),
		handlers.NewHealthHandler("files-manager", d.blobs.Root(),
			handlers.Dependency{Name: "mongodb", Pinger: d.meta},
			handlers.Dependency{Name: "redis", Pinger: d.sessions},
		),
	)

	doc, err := openapi.Load()
	if err != nil {
		return err
	}
	validate, err := middleware.OpenAPIValidator(doc, logger)
	if err != nil {
		return err
	}

	// 7. HTTP-сервер
	srv := server.New(server.Config{
		Addr:            ":" + strconv.Itoa(cfg.Port),
		TLSCert:         cfg.TLSCert,
		TLSKey:          cfg.TLSKey,
		ReadTimeout:     cfg.HTTPReadTimeout,
		WriteTimeout:    cfg.HTTPWriteTimeout,
		IdleTimeout:     cfg.HTTPIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, apiHandler.Router(validate, authz, logger), logger)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("HTTP-сервер: %w", err)
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}

// buildJWTResolver создаёт разрешение JWT, если задан FM_JWKS_URL.
// Ошибка инициализации JWKS не препятствует запуску: остаются сессии Redis.
func buildJWTResolver(cfg *config.Config, logger *slog.Logger) *auth.JWTResolver {
	if cfg.JWKSURL == "" {
		return nil
	}

	jwtResolver, err := auth.NewJWTResolver(auth.JWTConfig{
		JWKSURL:         cfg.JWKSURL,
		CACertPath:      cfg.JWKSCACert,
		TLSSkipVerify:   cfg.TLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Warn("JWT JWKS недоступен, запуск только с сессиями Redis",
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSURL))
	return jwtResolver
}
