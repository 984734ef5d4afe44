// files.go — HTTP handlers файловых операций Files Manager.
// Upload, List, Show (метаданные), Data (содержимое и миниатюры).
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/files-manager/internal/api/errors"
	"github.com/bigkaa/goartstore/files-manager/internal/auth"
	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
	"github.com/bigkaa/goartstore/files-manager/internal/service"
)

// Uploader — Upload Pipeline.
type Uploader interface {
	Create(ctx context.Context, token string, p service.CreateParams) (*model.FileRecord, error)
}

// FileReader — Access Gate и чтение метаданных.
type FileReader interface {
	Read(ctx context.Context, fileID, token, size string) (*service.Content, error)
	Show(ctx context.Context, fileID, token string) (*model.FileRecord, error)
	List(ctx context.Context, token, parentID string, page int) ([]*model.FileRecord, error)
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploader Uploader
	reader   FileReader
	logger   *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploader Uploader, reader FileReader, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		uploader: uploader,
		reader:   reader,
		logger:   logger.With(slog.String("component", "files_handler")),
	}
}

// UploadFile обрабатывает POST /api/v1/files.
// JSON: name, type, parentId (0 или id папки), isPublic, data (base64).
// Поля разбираются по отдельности: поле неверного типа считается
// отсутствующим, порядок проверок определяет Upload Pipeline.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	params := parseUploadBody(r.Body, h.logger)

	rec, err := h.uploader.Create(r.Context(), auth.TokenFromRequest(r), params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListFiles обрабатывает GET /api/v1/files?parentId=&page=.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil {
		page = 0
	}

	records, err := h.reader.List(r.Context(), auth.TokenFromRequest(r), query.Get("parentId"), page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*model.FileRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// ShowFile обрабатывает GET /api/v1/files/{id}.
func (h *FilesHandler) ShowFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reader.Show(r.Context(), chi.URLParam(r, "id"), auth.TokenFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DownloadFile обрабатывает GET /api/v1/files/{id}/data?size=.
// Токен необязателен: публичные файлы отдаются всем.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	content, err := h.reader.Read(
		r.Context(),
		chi.URLParam(r, "id"),
		auth.TokenFromRequest(r),
		r.URL.Query().Get("size"),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}

// writeServiceError отображает ошибки сервисного слоя в HTTP-ответы.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w)
	case errors.As(err, &validationErr):
		apierrors.ValidationError(w, "Missing "+validationErr.Field)
	case errors.Is(err, service.ErrInvalidSize):
		apierrors.ValidationError(w, apierrors.MsgInvalidSize)
	case errors.Is(err, service.ErrParentNotFound):
		apierrors.ParentNotFound(w)
	case errors.Is(err, service.ErrParentNotAFolder):
		apierrors.ParentNotAFolder(w)
	case errors.Is(err, service.ErrFolderHasNoContent):
		apierrors.FolderHasNoContent(w)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w)
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w)
	}
}

// parseUploadBody разбирает тело запроса загрузки.
// Некорректный JSON даёт пустые параметры.
func parseUploadBody(body io.Reader, logger *slog.Logger) service.CreateParams {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		logger.Debug("Тело запроса загрузки не разобрано", slog.String("error", err.Error()))
		return service.CreateParams{}
	}

	return service.CreateParams{
		Name:     stringField(fields["name"]),
		Type:     stringField(fields["type"]),
		ParentID: parentField(fields["parentId"]),
		IsPublic: bytes.Equal(bytes.TrimSpace(fields["isPublic"]), []byte("true")),
		Data:     stringField(fields["data"]),
	}
}

// stringField возвращает значение JSON-строки или "" для прочих типов.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// parentField принимает parentId строкой или числом (0 — корень).
func parentField(raw json.RawMessage) string {
	if s := stringField(raw); s != "" {
		return s
	}
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return ""
	}
	return n.String()
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
