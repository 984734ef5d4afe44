// interfaces.go — зависимости сервисов. Реализации: metastore.Store,
// filestore.FileStore, queue.Dispatcher; в тестах — реализации в памяти.
package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
)

// MetadataStore — Metadata Store.
type MetadataStore interface {
	Insert(ctx context.Context, rec *model.FileRecord) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.FileRecord, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID primitive.ObjectID) (*model.FileRecord, error)
	ListByParent(ctx context.Context, ownerID primitive.ObjectID, parent model.ParentRef, page, pageSize int) ([]*model.FileRecord, error)
	ExistsByStoragePath(ctx context.Context, storagePath string) (bool, error)
}

// BlobStore — Blob Store.
type BlobStore interface {
	Write(name string, data []byte) (*filestore.WriteResult, error)
	Read(name string) ([]byte, error)
	Delete(name string) error
	List() ([]filestore.BlobInfo, error)
	RemoveStaleTemp(before time.Time) ([]string, error)
}

// JobDispatcher — неблокирующая постановка заданий миниатюр.
type JobDispatcher interface {
	Dispatch(job any) bool
}
