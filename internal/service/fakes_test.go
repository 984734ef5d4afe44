package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memMeta — Metadata Store в памяти.
type memMeta struct {
	mu        sync.Mutex
	records   map[primitive.ObjectID]model.FileRecord
	finds     int
	insertErr error
}

func newMemMeta() *memMeta {
	return &memMeta{records: make(map[primitive.ObjectID]model.FileRecord)}
}

func (m *memMeta) Insert(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	rec.ID = primitive.NewObjectID()
	m.records[rec.ID] = *rec
	return nil
}

func (m *memMeta) FindByID(_ context.Context, id primitive.ObjectID) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	rec, ok := m.records[id]
	if !ok {
		return nil, metastore.ErrNotFound
	}
	return &rec, nil
}

func (m *memMeta) FindByIDAndOwner(ctx context.Context, id, ownerID primitive.ObjectID) (*model.FileRecord, error) {
	rec, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, metastore.ErrNotFound
	}
	return rec, nil
}

func (m *memMeta) ListByParent(_ context.Context, ownerID primitive.ObjectID, parent model.ParentRef, page, pageSize int) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*model.FileRecord
	for _, rec := range m.records {
		if rec.OwnerID == ownerID && rec.ParentID == parent {
			r := rec
			all = append(all, &r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })

	start := page * pageSize
	if start >= len(all) {
		return []*model.FileRecord{}, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], nil
}

func (m *memMeta) ExistsByStoragePath(_ context.Context, storagePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.StoragePath == storagePath {
			return true, nil
		}
	}
	return false, nil
}

func (m *memMeta) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memMeta) findCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}

// put сохраняет запись напрямую, минуя сервисы.
func (m *memMeta) put(rec model.FileRecord) model.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	m.records[rec.ID] = rec
	return rec
}

// tokens — резолвер токенов в памяти.
type tokens map[string]primitive.ObjectID

func (t tokens) Resolve(_ context.Context, token string) (primitive.ObjectID, error) {
	id, ok := t[token]
	if !ok {
		return primitive.NilObjectID, auth.ErrUnresolved
	}
	return id, nil
}

// brokenResolver имитирует недоступный Session Store.
type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, string) (primitive.ObjectID, error) {
	return primitive.NilObjectID, errors.New("redis: connection refused")
}

// recordingDispatcher запоминает поставленные задания.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []model.ThumbnailJob
}

func (d *recordingDispatcher) Dispatch(job any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job.(model.ThumbnailJob))
	return true
}

func (d *recordingDispatcher) dispatched() []model.ThumbnailJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.ThumbnailJob(nil), d.jobs...)
}

// failingBlobs — Blob Store, запись в который всегда неудачна.
type failingBlobs struct {
	*filestore.FileStore
}

func (failingBlobs) Write(string, []byte) (*filestore.WriteResult, error) {
	return nil, errors.New("no space left on device")
}

// env — окружение сервисов для тестов.
type env struct {
	meta       *memMeta
	blobs      *filestore.FileStore
	tokens     tokens
	dispatcher *recordingDispatcher
	upload     *UploadService
	download   *DownloadService
	thumbs     *ThumbnailService
}

const (
	aliceToken = "031bffac-3edc-4e51-aaae-1c121317da8a"
	bobToken   = "c4b7d2f0-8a6e-4c1b-9b7e-2f3a1d5e6c7b"
)

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		meta:       newMemMeta(),
		blobs:      filestore.New(t.TempDir()),
		tokens:     tokens{aliceToken: primitive.NewObjectID(), bobToken: primitive.NewObjectID()},
		dispatcher: &recordingDispatcher{},
	}
	logger := testLogger()
	e.upload = NewUploadService(e.meta, e.blobs, e.tokens, e.dispatcher, logger)
	e.download = NewDownloadService(e.meta, e.blobs, e.tokens, NewCacheService(64, 0), logger)
	e.thumbs = NewThumbnailService(e.meta, e.blobs, logger)
	return e
}
