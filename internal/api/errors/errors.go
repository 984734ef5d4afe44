// Пакет errors — конструкторы ошибок API Files Manager.
// Единый формат: {"error": "<message>", "code": "<CODE>"}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // имя пакета совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeParentNotFound      = "PARENT_NOT_FOUND"
	CodeParentNotAFolder    = "PARENT_NOT_A_FOLDER"
	CodeFolderHasNoContent  = "FOLDER_HAS_NO_CONTENT"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Тексты ошибок, которые видит клиент.
const (
	MsgUnauthorized       = "Unauthorized"
	MsgForbidden          = "Forbidden"
	MsgParentNotFound     = "Parent not found"
	MsgParentNotAFolder   = "Parent is not a folder"
	MsgNotFound           = "Not found"
	MsgFolderHasNoContent = "A folder doesn't have content"
	MsgInvalidSize        = "Invalid size"
	MsgInternalError      = "Internal error"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError записывает ответ ошибки.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: message,
		Code:  code,
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ParentNotFound — 400 родитель не найден.
func ParentNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeParentNotFound, MsgParentNotFound)
}

// ParentNotAFolder — 400 родитель не является папкой.
func ParentNotAFolder(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeParentNotAFolder, MsgParentNotAFolder)
}

// FolderHasNoContent — 400 у папки нет содержимого.
func FolderHasNoContent(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeFolderHasNoContent, MsgFolderHasNoContent)
}

// NotFound — 404 ресурс не найден. Тело не зависит от причины.
func NotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, CodeNotFound, MsgNotFound)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, MsgUnauthorized)
}

// Forbidden — 403 у токена нет нужного scope.
func Forbidden(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeForbidden, MsgForbidden)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, MsgInternalError)
}
