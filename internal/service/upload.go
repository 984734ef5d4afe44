// upload.go — Upload Pipeline: создание папок и файлов.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
)

// CreateParams — параметры создания записи в том виде, как они пришли в запросе.
type CreateParams struct {
	// Name — отображаемое имя
	Name string
	// Type — folder, file или image
	Type string
	// ParentID — "0"/пусто для корня или hex ObjectID папки
	ParentID string
	// IsPublic — публичная запись
	IsPublic bool
	// Data — содержимое в base64 (обязательно для file и image)
	Data string
}

// UploadService — Upload Pipeline.
type UploadService struct {
	meta       MetadataStore
	blobs      BlobStore
	resolver   auth.Resolver
	dispatcher JobDispatcher
	logger     *slog.Logger
}

// NewUploadService создаёт Upload Pipeline.
func NewUploadService(
	meta MetadataStore,
	blobs BlobStore,
	resolver auth.Resolver,
	dispatcher JobDispatcher,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		meta:       meta,
		blobs:      blobs,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "upload_service")),
	}
}

// Create создаёт папку или файл.
//
// Проверки выполняются по порядку, первая неудачная возвращается сразу:
//  1. токен разрешается в пользователя
//  2. name не пустое
//  3. type — folder, file или image
//  4. для file/image передан data
//  5. родитель — корень или существующая папка
//
// Для file/image байты пишутся в Blob Store до вставки метаданных:
// при ошибке записи запись не создаётся. Для image после вставки
// ставится задание миниатюр; его судьба на результат не влияет.
func (s *UploadService) Create(ctx context.Context, token string, p CreateParams) (*model.FileRecord, error) {
	ownerID, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnresolved) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("разрешение токена: %w", err)
	}

	if p.Name == "" {
		return nil, missing("name")
	}

	kind, ok := model.ParseFileKind(p.Type)
	if !ok {
		return nil, missing("type")
	}

	if kind != model.KindFolder && p.Data == "" {
		return nil, missing("data")
	}

	parent, err := s.checkParent(ctx, p.ParentID)
	if err != nil {
		return nil, err
	}

	rec := &model.FileRecord{
		OwnerID:  ownerID,
		Name:     p.Name,
		Kind:     kind,
		IsPublic: p.IsPublic,
		ParentID: parent,
	}

	var written *filestore.WriteResult
	if kind != model.KindFolder {
		data, err := decodeData(p.Data)
		if err != nil {
			return nil, err
		}

		written, err = s.blobs.Write(filestore.NewName(), data)
		if err != nil {
			return nil, fmt.Errorf("запись содержимого %q: %w", p.Name, err)
		}
		rec.StoragePath = written.StoragePath
	}

	if err := s.meta.Insert(ctx, rec); err != nil {
		if rec.StoragePath != "" {
			s.logger.Warn("Метаданные не сохранены, blob остаётся до сверки",
				slog.String("storage_path", rec.StoragePath),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("сохранение метаданных %q: %w", p.Name, err)
	}

	attrs := []any{
		slog.String("file_id", rec.ID.Hex()),
		slog.String("owner_id", ownerID.Hex()),
		slog.String("type", string(kind)),
		slog.String("parent_id", parent.String()),
	}
	if written != nil {
		attrs = append(attrs,
			slog.String("storage_path", written.StoragePath),
			slog.Int64("size", written.Size),
			slog.String("sha256", written.Checksum),
		)
	}
	s.logger.Info("Запись создана", attrs...)

	if kind == model.KindImage {
		s.dispatcher.Dispatch(model.ThumbnailJob{
			UserID: ownerID.Hex(),
			FileID: rec.ID.Hex(),
		})
	}

	return rec, nil
}

// checkParent проверяет родителя: корень или существующая запись типа folder.
// Некорректный идентификатор не может ссылаться на запись: ErrParentNotFound.
func (s *UploadService) checkParent(ctx context.Context, raw string) (model.ParentRef, error) {
	parent, err := model.ParseParentRef(raw)
	if err != nil {
		return model.ParentRef{}, ErrParentNotFound
	}

	id, ok := parent.ID()
	if !ok {
		return parent, nil
	}

	rec, err := s.meta.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return model.ParentRef{}, ErrParentNotFound
		}
		return model.ParentRef{}, fmt.Errorf("поиск родителя %s: %w", id.Hex(), err)
	}
	if !rec.IsFolder() {
		return model.ParentRef{}, ErrParentNotAFolder
	}
	return parent, nil
}

// decodeData декодирует base64 (стандартный алфавит, с дополнением или без).
func decodeData(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(s)
	if rawErr == nil {
		return data, nil
	}
	return nil, missing("data")
}
