package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/queue"
	"github.com/bigkaa/goartstore/files-manager/internal/storage/filestore"
)

// pngBase64 строит PNG w×h и кодирует его в base64.
func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func pngSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func jobPayload(t *testing.T, job any) []byte {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func TestThumbnail_GeneratesAllWidths(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "image.png", Type: "image", Data: pngBase64(t, 1000, 500)})
	require.NoError(t, err)

	require.NoError(t, e.thumbs.Handle(ctx, jobPayload(t, e.dispatcher.dispatched()[0])))

	for _, width := range []int{500, 250, 100} {
		data, err := e.blobs.Read(filestore.ThumbnailName(rec.StoragePath, strconv.Itoa(width)))
		require.NoError(t, err)
		w, h := pngSize(t, data)
		assert.Equal(t, width, w)
		assert.Equal(t, width/2, h)
	}
}

// TestThumbnail_Idempotent проверяет, что повторная доставка даёт те же байты
// и не создаёт записей.
func TestThumbnail_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "image.png", Type: "image", Data: pngBase64(t, 640, 480)})
	require.NoError(t, err)
	payload := jobPayload(t, e.dispatcher.dispatched()[0])
	records := e.meta.count()

	require.NoError(t, e.thumbs.Handle(ctx, payload))
	first, err := e.blobs.Read(filestore.ThumbnailName(rec.StoragePath, "100"))
	require.NoError(t, err)

	require.NoError(t, e.thumbs.Handle(ctx, payload))
	second, err := e.blobs.Read(filestore.ThumbnailName(rec.StoragePath, "100"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, records, e.meta.count())
}

func TestThumbnail_InvalidPayloadIsPermanent(t *testing.T) {
	e := newEnv(t)
	id := primitive.NewObjectID().Hex()

	payloads := []string{
		`not json`,
		`{}`,
		`{"userId":"` + id + `"}`,
		`{"fileId":"` + id + `"}`,
		`{"userId":"bogus","fileId":"` + id + `"}`,
		`{"userId":"` + id + `","fileId":"bogus"}`,
	}

	for _, p := range payloads {
		err := e.thumbs.Handle(context.Background(), []byte(p))
		require.ErrorIs(t, err, ErrJobPayloadInvalid, p)
		assert.True(t, queue.IsPermanent(err), p)
	}
}

// TestThumbnail_OwnerMismatchIsRetryable проверяет повторную проверку владельца.
func TestThumbnail_OwnerMismatchIsRetryable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "image.png", Type: "image", Data: pngBase64(t, 10, 10)})
	require.NoError(t, err)

	err = e.thumbs.Handle(ctx, jobPayload(t, model.ThumbnailJob{
		UserID: e.tokens[bobToken].Hex(),
		FileID: rec.ID.Hex(),
	}))
	require.ErrorIs(t, err, ErrJobFileUnresolved)
	assert.False(t, queue.IsPermanent(err))

	blobs, err := e.blobs.List()
	require.NoError(t, err)
	assert.Len(t, blobs, 1, "миниатюры не созданы")
}

func TestThumbnail_UndecodableImageIsPermanent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "fake.png", Type: "image", Data: b64("not an image")})
	require.NoError(t, err)

	err = e.thumbs.Handle(ctx, jobPayload(t, e.dispatcher.dispatched()[0]))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestThumbnail_NotAnImageIsPermanent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.upload.Create(ctx, aliceToken, CreateParams{Name: "a.txt", Type: "file", Data: b64("a")})
	require.NoError(t, err)

	err = e.thumbs.Handle(ctx, jobPayload(t, model.ThumbnailJob{UserID: rec.OwnerID.Hex(), FileID: rec.ID.Hex()}))
	require.ErrorIs(t, err, ErrJobPayloadInvalid)
}

// TestThumbnail_MissingOriginalIsRetryable — оригинал мог ещё не появиться.
func TestThumbnail_MissingOriginalIsRetryable(t *testing.T) {
	e := newEnv(t)

	rec := e.meta.put(model.FileRecord{
		OwnerID: e.tokens[aliceToken], Name: "x.png", Kind: model.KindImage, StoragePath: filestore.NewName(),
	})

	err := e.thumbs.Handle(context.Background(), jobPayload(t, model.ThumbnailJob{UserID: rec.OwnerID.Hex(), FileID: rec.ID.Hex()}))
	require.ErrorIs(t, err, filestore.ErrNotExist)
	assert.False(t, queue.IsPermanent(err))
}
