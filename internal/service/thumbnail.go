// thumbnail.go — Thumbnail Worker: обработка заданий генерации миниатюр.
//
// Для каждого задания {userId, fileId}:
//  1. оба поля присутствуют и являются ObjectID, иначе ErrJobPayloadInvalid
//  2. запись ищется по паре (fileId, userId), иначе ErrJobFileUnresolved
//  3. для ширин 500, 250, 100 миниатюра пишется в {localPath}_{ширина}
//
// Первая ошибка прерывает задание; повтор — по политике очереди.
// Повторная обработка перезаписывает те же миниатюры теми же байтами.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/queue"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
	"github.com/bigkaa/goartstore/files-manager/internal/thumbnail"
)

// Prometheus метрики Thumbnail Worker
var (
	// thumbnailJobsTotal — количество обработанных заданий по результату.
	thumbnailJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fm_thumbnail_jobs_total",
		Help: "Количество обработанных заданий миниатюр по результату",
	}, []string{"result"})

	// thumbnailJobDuration — длительность обработки задания.
	thumbnailJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fm_thumbnail_job_duration_seconds",
		Help:    "Длительность обработки задания миниатюр в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// ThumbnailService — Thumbnail Worker.
type ThumbnailService struct {
	meta   MetadataStore
	blobs  BlobStore
	widths []int
	logger *slog.Logger
}

// NewThumbnailService создаёт Thumbnail Worker с ширинами model.ThumbnailWidths.
func NewThumbnailService(meta MetadataStore, blobs BlobStore, logger *slog.Logger) *ThumbnailService {
	return &ThumbnailService{
		meta:   meta,
		blobs:  blobs,
		widths: model.ThumbnailWidths,
		logger: logger.With(slog.String("component", "thumbnail_worker")),
	}
}

// Handle обрабатывает задание из очереди (queue.Handler).
func (s *ThumbnailService) Handle(ctx context.Context, payload []byte) error {
	start := time.Now()
	err := s.handle(ctx, payload)
	thumbnailJobDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		thumbnailJobsTotal.WithLabelValues("success").Inc()
	case queue.IsPermanent(err):
		thumbnailJobsTotal.WithLabelValues("rejected").Inc()
	default:
		thumbnailJobsTotal.WithLabelValues("failed").Inc()
	}
	return err
}

func (s *ThumbnailService) handle(ctx context.Context, payload []byte) error {
	fileID, ownerID, err := ParseThumbnailJob(payload)
	if err != nil {
		s.logger.Warn("Некорректное задание миниатюр", slog.String("error", err.Error()))
		return err
	}

	rec, err := s.meta.FindByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return fmt.Errorf("%w: file %s, owner %s", ErrJobFileUnresolved, fileID.Hex(), ownerID.Hex())
		}
		return fmt.Errorf("поиск файла задания %s: %w", fileID.Hex(), err)
	}
	if rec.Kind != model.KindImage || rec.StoragePath == "" {
		return fmt.Errorf("%w: запись %s не является изображением", ErrJobPayloadInvalid, fileID.Hex())
	}

	src, err := s.blobs.Read(rec.StoragePath)
	if err != nil {
		return fmt.Errorf("чтение оригинала %s: %w", rec.StoragePath, err)
	}

	for _, width := range s.widths {
		if err := ctx.Err(); err != nil {
			return err
		}

		thumb, err := thumbnail.Generate(src, width)
		if err != nil {
			if errors.Is(err, thumbnail.ErrDecode) {
				return queue.Permanent(fmt.Errorf("миниатюра %s: %w", rec.StoragePath, err))
			}
			return fmt.Errorf("миниатюра %s шириной %d: %w", rec.StoragePath, width, err)
		}

		name := filestore.ThumbnailName(rec.StoragePath, strconv.Itoa(width))
		if _, err := s.blobs.Write(name, thumb); err != nil {
			return fmt.Errorf("запись миниатюры %s: %w", name, err)
		}
	}

	s.logger.Info("Миниатюры созданы",
		slog.String("file_id", fileID.Hex()),
		slog.String("storage_path", rec.StoragePath),
	)
	return nil
}

// ParseThumbnailJob разбирает и нормализует задание: идентификаторы
// приводятся к ObjectID, чтобы сравнение с записью было типизированным.
func ParseThumbnailJob(payload []byte) (fileID, ownerID primitive.ObjectID, err error) {
	var job model.ThumbnailJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fileID, ownerID, fmt.Errorf("%w: %w", ErrJobPayloadInvalid, err)
	}
	if job.FileID == "" {
		return fileID, ownerID, fmt.Errorf("%w: отсутствует fileId", ErrJobPayloadInvalid)
	}
	if job.UserID == "" {
		return fileID, ownerID, fmt.Errorf("%w: отсутствует userId", ErrJobPayloadInvalid)
	}

	fileID, err = primitive.ObjectIDFromHex(job.FileID)
	if err != nil {
		return fileID, ownerID, fmt.Errorf("%w: fileId %q", ErrJobPayloadInvalid, job.FileID)
	}
	ownerID, err = primitive.ObjectIDFromHex(job.UserID)
	if err != nil {
		return fileID, ownerID, fmt.Errorf("%w: userId %q", ErrJobPayloadInvalid, job.UserID)
	}
	return fileID, ownerID, nil
}
