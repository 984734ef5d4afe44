// reconcile.go — сервис фоновой сверки (Reconciliation) Blob Store
// с Metadata Store.
//
// Blob может остаться без записи, если запись метаданных не удалась
// после записи байтов. Сверка находит такие blob-ы и удаляет их вместе
// с миниатюрами:
//   - orphaned_blob: оригинал старше grace-периода, на который не ссылается
//     ни одна запись (localPath)
//   - orphaned_thumbnail: миниатюра старше grace-периода без оригинала
//   - stale_temp: временный файл записи, прерванной падением процесса
//
// Grace-период защищает blob-ы загрузок, которые ещё не дошли до вставки
// метаданных.
//
// Запускается как горутина с периодическим тикером (FM_RECONCILE_INTERVAL)
// и по запросу через API.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
)

// Типы проблем сверки.
const (
	IssueOrphanedBlob      = "orphaned_blob"
	IssueOrphanedThumbnail = "orphaned_thumbnail"
	IssueStaleTemp         = "stale_temp"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileOrphansTotal — количество удалённых blob-ов по типу.
	reconcileOrphansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fm_reconcile_orphans_total",
		Help: "Общее количество blob-ов без записи, удалённых reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fm_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — найденный blob без записи.
type ReconcileIssue struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Removed bool   `json:"removed"`
}

// ReconcileResult — результат одного прохода.
type ReconcileResult struct {
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	BlobsChecked int              `json:"blobsChecked"`
	Issues       []ReconcileIssue `json:"issues"`
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	meta     MetadataStore
	blobs    BlobStore
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	meta MetadataStore,
	blobs BlobStore,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		meta:     meta,
		blobs:    blobs,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "reconcile")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("grace_period", rs.grace.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Если reconciliation уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := rs.now().UTC()
	rs.logger.Info("Reconciliation начата")

	checked, issues := rs.reconcile(ctx)

	completedAt := rs.now().UTC()
	duration := completedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range issues {
		if issue.Removed {
			reconcileOrphansTotal.WithLabelValues(issue.Type).Inc()
		}
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("blobs_checked", checked),
		slog.Int("issues", len(issues)),
		slog.Duration("duration", duration),
	)

	return &ReconcileResult{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		BlobsChecked: checked,
		Issues:       issues,
	}, false
}

// reconcile находит и удаляет blob-ы без записей.
func (rs *ReconcileService) reconcile(ctx context.Context) (int, []ReconcileIssue) {
	issues := []ReconcileIssue{}

	blobs, err := rs.blobs.List()
	if err != nil {
		rs.logger.Error("Ошибка чтения Blob Store", slog.String("error", err.Error()))
		return 0, issues
	}

	listed := make(map[string]bool, len(blobs))
	for _, b := range blobs {
		listed[b.Name] = true
	}

	cutoff := rs.now().Add(-rs.grace)
	checked := 0

	temps, err := rs.blobs.RemoveStaleTemp(cutoff)
	if err != nil {
		rs.logger.Warn("Ошибка удаления временных файлов", slog.String("error", err.Error()))
	}
	for _, name := range temps {
		rs.logger.Info("Удалён временный файл прерванной записи", slog.String("file", name))
		issues = append(issues, ReconcileIssue{Type: IssueStaleTemp, Path: name, Removed: true})
	}

	for _, b := range blobs {
		if ctx.Err() != nil {
			break
		}
		checked++
		if b.ModTime.After(cutoff) {
			continue
		}

		// Миниатюра: проверяется только наличие оригинала на диске.
		// Миниатюры существующих оригиналов обрабатываются вместе с ними.
		if filestore.IsDerivedName(b.Name) {
			base := b.Name[:strings.LastIndexByte(b.Name, '_')]
			if listed[base] {
				continue
			}
			issues = append(issues, ReconcileIssue{
				Type:    IssueOrphanedThumbnail,
				Path:    b.Name,
				Removed: rs.remove(b.Name),
			})
			continue
		}

		exists, err := rs.meta.ExistsByStoragePath(ctx, b.Name)
		if err != nil {
			rs.logger.Warn("Ошибка проверки записи для blob-а",
				slog.String("blob", b.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			continue
		}

		removed := rs.remove(b.Name)
		issues = append(issues, ReconcileIssue{Type: IssueOrphanedBlob, Path: b.Name, Removed: removed})
		if removed {
			for _, width := range model.ThumbnailWidths {
				name := filestore.ThumbnailName(b.Name, strconv.Itoa(width))
				if listed[name] {
					rs.remove(name)
				}
			}
		}
	}

	return checked, issues
}

// remove удаляет blob, возвращает true при успехе.
func (rs *ReconcileService) remove(name string) bool {
	if err := rs.blobs.Delete(name); err != nil {
		rs.logger.Warn("Ошибка удаления blob-а",
			slog.String("blob", name),
			slog.String("error", err.Error()),
		)
		return false
	}
	rs.logger.Info("Удалён blob без записи", slog.String("blob", name))
	return true
}
