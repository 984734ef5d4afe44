package service

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
)

func TestRead_PublicWithoutToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{
		Name: "myText.txt", Type: "file", IsPublic: true, Data: b64("Hello Webstack!\n"),
	})
	require.NoError(t, err)

	content, err := e.download.Read(ctx, rec.ID.Hex(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello Webstack!\n", string(content.Data))
	assert.Equal(t, "text/plain; charset=utf-8", content.ContentType)
	assert.Equal(t, "myText.txt", content.Name)
}

// TestRead_PrivateHidden проверяет, что чужой, отсутствующий и неверный токен
// неотличимы от несуществующей записи.
func TestRead_PrivateHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "secret.txt", Type: "file", Data: b64("s")})
	require.NoError(t, err)

	for _, token := range []string{"", "bogus", bobToken} {
		_, err := e.download.Read(ctx, rec.ID.Hex(), token, "")
		assert.ErrorIs(t, err, ErrNotFound, "token %q", token)
	}

	_, err = e.download.Read(ctx, primitive.NewObjectID().Hex(), aliceToken, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.download.Read(ctx, "not-an-id", aliceToken, "")
	assert.ErrorIs(t, err, ErrNotFound)

	content, err := e.download.Read(ctx, rec.ID.Hex(), aliceToken, "")
	require.NoError(t, err)
	assert.Equal(t, "s", string(content.Data))
}

// TestRead_OwnerManyFiles проверяет доступ владельца независимо от числа его файлов.
func TestRead_OwnerManyFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var ids []string
	for i := range 30 {
		rec, err := e.upload.Create(ctx, aliceToken, CreateParams{
			Name: fmt.Sprintf("f%d.txt", i), Type: "file", Data: b64(strconv.Itoa(i)),
		})
		require.NoError(t, err)
		ids = append(ids, rec.ID.Hex())
	}

	for i, id := range ids {
		content, err := e.download.Read(ctx, id, aliceToken, "")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), string(content.Data))
	}
}

func TestRead_Folder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "docs", Type: "folder", IsPublic: true})
	require.NoError(t, err)

	_, err = e.download.Read(ctx, folder.ID.Hex(), "", "")
	require.ErrorIs(t, err, ErrFolderHasNoContent)
}

// TestRead_InvalidSizeBeforeLookup проверяет отказ по size до обращения к хранилищу.
func TestRead_InvalidSizeBeforeLookup(t *testing.T) {
	e := newEnv(t)

	for _, size := range []string{"abc", "-1", "2.5", "100px", " 100"} {
		_, err := e.download.Read(context.Background(), primitive.NewObjectID().Hex(), "", size)
		assert.ErrorIs(t, err, ErrInvalidSize, "size %q", size)
	}
	assert.Zero(t, e.meta.findCalls())
}

// TestRead_ThumbnailLifecycle: до обработки задания миниатюры нет,
// после — возвращаются байты нужной ширины.
func TestRead_ThumbnailLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{
		Name: "image.png", Type: "image", IsPublic: true, Data: pngBase64(t, 800, 400),
	})
	require.NoError(t, err)

	_, err = e.download.Read(ctx, rec.ID.Hex(), "", "250")
	require.ErrorIs(t, err, ErrNotFound)

	jobs := e.dispatcher.dispatched()
	require.Len(t, jobs, 1)
	require.NoError(t, e.thumbs.Handle(ctx, jobPayload(t, jobs[0])))

	content, err := e.download.Read(ctx, rec.ID.Hex(), "", "250")
	require.NoError(t, err)
	assert.Equal(t, "image/png", content.ContentType)
	w, h := pngSize(t, content.Data)
	assert.Equal(t, 250, w)
	assert.Equal(t, 125, h)

	_, err = e.download.Read(ctx, rec.ID.Hex(), "", "42")
	require.ErrorIs(t, err, ErrNotFound, "неизвестная ширина не найдена")
}

// TestRead_UsesCache проверяет, что повторные чтения не идут в Metadata Store.
func TestRead_UsesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "a.txt", Type: "file", IsPublic: true, Data: b64("a")})
	require.NoError(t, err)
	before := e.meta.findCalls()

	for range 3 {
		_, err := e.download.Read(ctx, rec.ID.Hex(), "", "")
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, e.meta.findCalls())
}

func TestRead_MissingBlob(t *testing.T) {
	e := newEnv(t)

	rec := e.meta.put(model.FileRecord{
		OwnerID: e.tokens[aliceToken], Name: "gone.txt", Kind: model.KindFile,
		IsPublic: true, StoragePath: filestore.NewName(),
	})

	_, err := e.download.Read(context.Background(), rec.ID.Hex(), "", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestShow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "a.txt", Type: "file", IsPublic: true, Data: b64("a")})
	require.NoError(t, err)

	got, err := e.download.Show(ctx, rec.ID.Hex(), aliceToken)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = e.download.Show(ctx, rec.ID.Hex(), bobToken)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.download.Show(ctx, rec.ID.Hex(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.download.Show(ctx, "zzz", aliceToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_Pagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	folder, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "docs", Type: "folder"})
	require.NoError(t, err)
	for i := range 25 {
		_, err := e.upload.Create(ctx, aliceToken, CreateParams{
			Name: fmt.Sprintf("f%d", i), Type: "folder", ParentID: folder.ID.Hex(),
		})
		require.NoError(t, err)
	}
	_, err = e.upload.Create(ctx, bobToken, CreateParams{Name: "bob", Type: "folder"})
	require.NoError(t, err)

	page0, err := e.download.List(ctx, aliceToken, folder.ID.Hex(), 0)
	require.NoError(t, err)
	assert.Len(t, page0, ListPageSize)

	page1, err := e.download.List(ctx, aliceToken, folder.ID.Hex(), 1)
	require.NoError(t, err)
	assert.Len(t, page1, 5)

	rootList, err := e.download.List(ctx, aliceToken, "0", -3)
	require.NoError(t, err)
	require.Len(t, rootList, 1)
	assert.Equal(t, "docs", rootList[0].Name)

	bogus, err := e.download.List(ctx, aliceToken, "bogus", 0)
	require.NoError(t, err)
	assert.Empty(t, bogus)

	_, err = e.download.List(ctx, "", "0", 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestContentTypeByName(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeByName("cat.png"))
	assert.Equal(t, "image/jpeg", ContentTypeByName("photo.JPG"))
	assert.Equal(t, "application/octet-stream", ContentTypeByName("README"))
	assert.Equal(t, "application/octet-stream", ContentTypeByName("data.unknownext"))
}

// TestRead_ResolverFailureHidesPrivate проверяет, что при недоступном
// Session Store приватная запись неотличима от несуществующей,
// а публичная по-прежнему отдаётся.
func TestRead_ResolverFailureHidesPrivate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	private, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "secret.txt", Type: "file", Data: b64("s")})
	require.NoError(t, err)
	public, err := e.upload.Create(ctx, aliceToken, CreateParams{
		Name: "open.txt", Type: "file", IsPublic: true, Data: b64("p"),
	})
	require.NoError(t, err)

	svc := NewDownloadService(e.meta, e.blobs, brokenResolver{}, nil, testLogger())

	_, errPrivate := svc.Read(ctx, private.ID.Hex(), aliceToken, "")
	_, errUnknown := svc.Read(ctx, primitive.NewObjectID().Hex(), aliceToken, "")
	assert.ErrorIs(t, errPrivate, ErrNotFound)
	assert.ErrorIs(t, errUnknown, ErrNotFound)
	assert.Equal(t, errUnknown.Error(), errPrivate.Error())

	content, err := svc.Read(ctx, public.ID.Hex(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "p", string(content.Data))
}
