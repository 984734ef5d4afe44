package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestCreate_FolderAtRoot(t *testing.T) {
	e := newEnv(t)

	rec, err := e.upload.Create(context.Background(), aliceToken, CreateParams{Name: "images", Type: "folder"})
	require.NoError(t, err)

	assert.False(t, rec.ID.IsZero())
	assert.Equal(t, e.tokens[aliceToken], rec.OwnerID)
	assert.Equal(t, model.KindFolder, rec.Kind)
	assert.True(t, rec.ParentID.IsRoot())
	assert.Empty(t, rec.StoragePath)
	assert.False(t, rec.IsPublic)

	blobs, err := e.blobs.List()
	require.NoError(t, err)
	assert.Empty(t, blobs, "папка не пишет в Blob Store")
	assert.Empty(t, e.dispatcher.dispatched())
}

// TestCreate_FileInFolder проверяет запись байтов и ссылку на родителя.
func TestCreate_FileInFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "docs", Type: "folder"})
	require.NoError(t, err)

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{
		Name:     "myText.txt",
		Type:     "file",
		ParentID: folder.ID.Hex(),
		IsPublic: true,
		Data:     b64("Hello Webstack!\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.Folder(folder.ID), rec.ParentID)
	assert.True(t, rec.IsPublic)
	require.NotEmpty(t, rec.StoragePath)

	data, err := e.blobs.Read(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "Hello Webstack!\n", string(data))
	assert.Empty(t, e.dispatcher.dispatched(), "задание ставится только для image")
}

// TestCreate_LogsChecksum проверяет, что размер и SHA-256 записанного
// содержимого попадают в лог создания записи.
func TestCreate_LogsChecksum(t *testing.T) {
	e := newEnv(t)
	var buf bytes.Buffer
	e.upload = NewUploadService(e.meta, e.blobs, e.tokens, e.dispatcher,
		slog.New(slog.NewJSONHandler(&buf, nil)))

	content := "Hello Webstack!\n"
	rec, err := e.upload.Create(context.Background(), aliceToken, CreateParams{
		Name: "myText.txt", Type: "file", Data: b64(content),
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	sum := sha256.Sum256([]byte(content))

	assert.Equal(t, "Запись создана", entry["msg"])
	assert.Equal(t, rec.StoragePath, entry["storage_path"])
	assert.Equal(t, hex.EncodeToString(sum[:]), entry["sha256"])
	assert.EqualValues(t, len(content), entry["size"])
}

func TestCreate_ImageDispatchesJob(t *testing.T) {
	e := newEnv(t)

	rec, err := e.upload.Create(context.Background(), aliceToken, CreateParams{
		Name: "cat.png", Type: "image", ParentID: "0", Data: b64("png-bytes"),
	})
	require.NoError(t, err)

	jobs := e.dispatcher.dispatched()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.ThumbnailJob{UserID: rec.OwnerID.Hex(), FileID: rec.ID.Hex()}, jobs[0])
}

// TestCreate_ValidationOrder проверяет порядок проверок: первая неудачная побеждает.
func TestCreate_ValidationOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	file, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "a.txt", Type: "file", Data: b64("x")})
	require.NoError(t, err)
	before := e.meta.count()

	tests := []struct {
		name    string
		token   string
		params  CreateParams
		wantErr error
		field   string
	}{
		{name: "нет токена и нет имени", token: "", params: CreateParams{}, wantErr: ErrUnauthorized},
		{name: "неизвестный токен", token: "nope", params: CreateParams{Name: "x", Type: "folder"}, wantErr: ErrUnauthorized},
		{name: "нет имени", token: aliceToken, params: CreateParams{Type: "bogus"}, field: "name"},
		{name: "нет типа", token: aliceToken, params: CreateParams{Name: "x"}, field: "type"},
		{name: "неизвестный тип", token: aliceToken, params: CreateParams{Name: "x", Type: "video"}, field: "type"},
		{name: "нет данных", token: aliceToken, params: CreateParams{Name: "x", Type: "file", ParentID: "bogus"}, field: "data"},
		{name: "битый base64", token: aliceToken, params: CreateParams{Name: "x", Type: "file", Data: "%%%"}, field: "data"},
		{name: "родитель не ObjectID", token: aliceToken, params: CreateParams{Name: "x", Type: "folder", ParentID: "bogus"}, wantErr: ErrParentNotFound},
		{name: "родитель не существует", token: aliceToken, params: CreateParams{Name: "x", Type: "folder", ParentID: primitive.NewObjectID().Hex()}, wantErr: ErrParentNotFound},
		{name: "родитель — файл", token: aliceToken, params: CreateParams{Name: "x", Type: "file", ParentID: file.ID.Hex(), Data: b64("y")}, wantErr: ErrParentNotAFolder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.upload.Create(ctx, tt.token, tt.params)
			require.Error(t, err)

			if tt.field != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, before, e.meta.count(), "ни одна неудачная попытка не создаёт запись")
}

// TestCreate_ParentCheckPrecedesBlobWrite проверяет, что байты не пишутся,
// если родитель некорректен.
func TestCreate_ParentCheckPrecedesBlobWrite(t *testing.T) {
	e := newEnv(t)

	_, err := e.upload.Create(context.Background(), aliceToken, CreateParams{
		Name: "x", Type: "file", ParentID: primitive.NewObjectID().Hex(), Data: b64("y"),
	})
	require.ErrorIs(t, err, ErrParentNotFound)

	blobs, err := e.blobs.List()
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestCreate_BlobWriteFailureLeavesNoRecord(t *testing.T) {
	e := newEnv(t)
	svc := NewUploadService(e.meta, failingBlobs{e.blobs}, e.tokens, e.dispatcher, testLogger())

	_, err := svc.Create(context.Background(), aliceToken, CreateParams{Name: "x", Type: "image", Data: b64("y")})
	require.Error(t, err)
	assert.Zero(t, e.meta.count())
	assert.Empty(t, e.dispatcher.dispatched())
}

func TestCreate_InsertFailure(t *testing.T) {
	e := newEnv(t)
	e.meta.insertErr = errors.New("mongo: write concern error")

	_, err := e.upload.Create(context.Background(), aliceToken, CreateParams{Name: "x", Type: "image", Data: b64("y")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, e.dispatcher.dispatched())
}

// TestCreate_SessionStoreDown проверяет, что сбой Session Store — не 401.
func TestCreate_SessionStoreDown(t *testing.T) {
	e := newEnv(t)
	svc := NewUploadService(e.meta, e.blobs, brokenResolver{}, e.dispatcher, testLogger())

	_, err := svc.Create(context.Background(), aliceToken, CreateParams{Name: "x", Type: "folder"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

// TestCreate_HierarchyInvariant проверяет, что у каждой записи родитель —
// корень или существующая папка.
func TestCreate_HierarchyInvariant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "a", Type: "folder"})
	require.NoError(t, err)
	child, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "b", Type: "folder", ParentID: root.ID.Hex()})
	require.NoError(t, err)
	file, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "c.txt", Type: "file", ParentID: child.ID.Hex(), Data: b64("c")})
	require.NoError(t, err)
	_, err = e.upload.Create(ctx, aliceToken, CreateParams{Name: "d", Type: "folder", ParentID: file.ID.Hex()})
	require.ErrorIs(t, err, ErrParentNotAFolder)

	for _, rec := range e.meta.records {
		id, ok := rec.ParentID.ID()
		if !ok {
			continue
		}
		parent, exists := e.meta.records[id]
		require.True(t, exists, "родитель %s записи %s", id.Hex(), rec.Name)
		assert.Equal(t, model.KindFolder, parent.Kind)
	}
}

func TestDecodeData(t *testing.T) {
	data, err := decodeData(b64("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = decodeData(base64.RawStdEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = decodeData("not base64!")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "data", verr.Field)
}
