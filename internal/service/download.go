// download.go — Access Gate: чтение содержимого и метаданных записей.
//
// Несуществующая запись и запись, невидимая вызывающему, неразличимы:
// обе дают ErrNotFound.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
)

const (
	// ListPageSize — размер страницы списка записей.
	ListPageSize = 20
	// defaultContentType — тип содержимого для неизвестных расширений.
	defaultContentType = "application/octet-stream"
)

// Content — содержимое файла или миниатюры.
type Content struct {
	Data        []byte
	ContentType string
	Name        string
}

// DownloadService — Access Gate.
type DownloadService struct {
	meta     MetadataStore
	blobs    BlobStore
	resolver auth.Resolver
	cache    *CacheService
	logger   *slog.Logger
}

// NewDownloadService создаёт Access Gate. cache может быть nil.
func NewDownloadService(
	meta MetadataStore,
	blobs BlobStore,
	resolver auth.Resolver,
	cache *CacheService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		meta:     meta,
		blobs:    blobs,
		resolver: resolver,
		cache:    cache,
		logger:   logger.With(slog.String("component", "download_service")),
	}
}

// Read возвращает содержимое файла или его миниатюры (size — ширина).
//
// Порядок:
//  1. size — пусто или десятичное число, иначе ErrInvalidSize
//  2. запись существует
//  3. публичная, либо токен принадлежит владельцу
//  4. не папка
//  5. blob {localPath} или {localPath}_{size} существует
func (s *DownloadService) Read(ctx context.Context, fileID, token, size string) (*Content, error) {
	if size != "" && !isDigits(size) {
		return nil, ErrInvalidSize
	}

	rec, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if !rec.IsPublic {
		// Сбой Session Store не должен отличать приватную запись
		// от несуществующей: ответ всегда ErrNotFound.
		ownerID, err := s.resolver.Resolve(ctx, token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnresolved) {
				s.logger.Error("Ошибка разрешения токена при чтении приватной записи",
					slog.String("file_id", fileID),
					slog.String("error", err.Error()),
				)
			}
			return nil, ErrNotFound
		}
		if ownerID != rec.OwnerID {
			return nil, ErrNotFound
		}
	}

	if rec.IsFolder() {
		return nil, ErrFolderHasNoContent
	}

	path := rec.StoragePath
	if size != "" {
		path = filestore.ThumbnailName(rec.StoragePath, size)
	}

	data, err := s.blobs.Read(path)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) || errors.Is(err, filestore.ErrInvalidName) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение содержимого %s: %w", fileID, err)
	}

	return &Content{
		Data:        data,
		ContentType: ContentTypeByName(rec.Name),
		Name:        rec.Name,
	}, nil
}

// Show возвращает метаданные записи владельцу.
func (s *DownloadService) Show(ctx context.Context, fileID, token string) (*model.FileRecord, error) {
	ownerID, err := s.resolveWriter(ctx, token)
	if err != nil {
		return nil, err
	}

	rec, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List возвращает страницу записей владельца внутри родителя.
// page начинается с 0; отрицательное значение трактуется как 0.
// parentID, не являющийся идентификатором, ни с чем не совпадает.
func (s *DownloadService) List(ctx context.Context, token, parentID string, page int) ([]*model.FileRecord, error) {
	ownerID, err := s.resolveWriter(ctx, token)
	if err != nil {
		return nil, err
	}

	parent, err := model.ParseParentRef(parentID)
	if err != nil {
		return []*model.FileRecord{}, nil
	}
	if page < 0 {
		page = 0
	}

	records, err := s.meta.ListByParent(ctx, ownerID, parent, page, ListPageSize)
	if err != nil {
		return nil, fmt.Errorf("список записей: %w", err)
	}
	return records, nil
}

// resolveWriter разрешает токен для операций, требующих аутентификации.
func (s *DownloadService) resolveWriter(ctx context.Context, token string) (primitive.ObjectID, error) {
	ownerID, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnresolved) {
			return primitive.NilObjectID, ErrUnauthorized
		}
		return primitive.NilObjectID, fmt.Errorf("разрешение токена: %w", err)
	}
	return ownerID, nil
}

// lookup ищет запись: сначала в кэше, затем в Metadata Store.
// Некорректный идентификатор — ErrNotFound.
func (s *DownloadService) lookup(ctx context.Context, fileID string) (*model.FileRecord, error) {
	id, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		if rec, ok := s.cache.Get(id.Hex()); ok {
			return rec, nil
		}
	}

	rec, err := s.meta.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск записи %s: %w", fileID, err)
	}

	if s.cache != nil {
		s.cache.Set(id.Hex(), rec)
	}
	return rec, nil
}

// ContentTypeByName определяет MIME-тип по расширению имени.
func ContentTypeByName(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}

// isDigits проверяет, что строка непустая и состоит из цифр 0-9.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
