package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/api/middleware"
	"github.com/bigkaa/goartstore/files-manager/internal/api/openapi"
	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/service"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/metastore"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	// adminToken — токен bob со scope files:maintenance
	adminToken = "admin-token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memMeta — Metadata Store в памяти.
type memMeta struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]model.FileRecord
	users   int64
	err     error
}

func newMemMeta() *memMeta {
	return &memMeta{records: make(map[primitive.ObjectID]model.FileRecord)}
}

func (m *memMeta) Insert(_ context.Context, rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = primitive.NewObjectID()
	m.records[rec.ID] = *rec
	return nil
}

func (m *memMeta) FindByID(_ context.Context, id primitive.ObjectID) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
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
	return all[start:min(start+pageSize, len(all))], nil
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

func (m *memMeta) CountUsers(context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.users, nil
}

func (m *memMeta) CountFiles(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.records)), nil
}

// tokens — разрешение токенов по таблице.
type tokens map[string]primitive.ObjectID

func (t tokens) Resolve(_ context.Context, token string) (primitive.ObjectID, error) {
	id, ok := t[token]
	if !ok {
		return primitive.NilObjectID, auth.ErrUnresolved
	}
	return id, nil
}

// scopedTokens — ScopeAuthorizer поверх tokens с заданными scope.
type scopedTokens struct {
	tokens tokens
	scopes map[string][]string
}

func (s scopedTokens) Authorize(ctx context.Context, token, scope string) (primitive.ObjectID, error) {
	id, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if !slices.Contains(s.scopes[token], scope) {
		return primitive.NilObjectID, auth.ErrForbidden
	}
	return id, nil
}

// recordingDispatcher запоминает поставленные задания.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []any
}

func (d *recordingDispatcher) Dispatch(job any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return true
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// pinger — зависимость с заданным результатом ping.
type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

var errDown = errors.New("connection refused")

// apiEnv — роутер serve поверх реальных сервисов и хранилищ в памяти/на диске.
type apiEnv struct {
	meta       *memMeta
	blobs      *filestore.FileStore
	dispatcher *recordingDispatcher
	alice      primitive.ObjectID
	bob        primitive.ObjectID
	handler    http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := testLogger()

	e := &apiEnv{
		meta:       newMemMeta(),
		blobs:      filestore.New(t.TempDir()),
		dispatcher: &recordingDispatcher{},
		alice:      primitive.NewObjectID(),
		bob:        primitive.NewObjectID(),
	}
	resolver := tokens{aliceToken: e.alice, bobToken: e.bob, adminToken: e.bob}
	authz := scopedTokens{
		tokens: resolver,
		scopes: map[string][]string{
			aliceToken: {"files:read"},
			adminToken: {auth.ScopeMaintenance},
		},
	}

	upload := service.NewUploadService(e.meta, e.blobs, resolver, e.dispatcher, logger)
	download := service.NewDownloadService(e.meta, e.blobs, resolver, service.NewCacheService(16, 0), logger)
	reconcile := service.NewReconcileService(e.meta, e.blobs, 0, 0, logger)

	api := NewAPIHandler(
		NewFilesHandler(upload, download, logger),
		NewSystemHandler(pinger{}, pinger{}, e.meta, logger),
		NewMaintenanceHandler(reconcile),
		NewHealthHandler("files-manager", e.blobs.Root()),
	)

	doc, err := openapi.Load()
	require.NoError(t, err)
	validate, err := middleware.OpenAPIValidator(doc, logger)
	require.NoError(t, err)

	e.handler = api.Router(validate, authz, logger)
	return e
}

// do выполняет запрос к роутеру.
func (e *apiEnv) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(auth.HeaderToken, token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}
