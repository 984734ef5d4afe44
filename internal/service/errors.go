// Пакет service — бизнес-логика Files Manager.
// errors.go — таксономия ошибок сервисов. Отображение в HTTP-статусы
// и тексты ответов — в internal/api/handlers.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/files-manager/internal/queue"
)

var (
	// ErrUnauthorized — токен отсутствует или не разрешён (операции записи).
	ErrUnauthorized = errors.New("пользователь не аутентифицирован")
	// ErrParentNotFound — родитель не найден.
	ErrParentNotFound = errors.New("родитель не найден")
	// ErrParentNotAFolder — родитель не является папкой.
	ErrParentNotAFolder = errors.New("родитель не является папкой")
	// ErrNotFound — запись не существует или не видна вызывающему.
	ErrNotFound = errors.New("запись не найдена")
	// ErrFolderHasNoContent — запрошено содержимое папки.
	ErrFolderHasNoContent = errors.New("у папки нет содержимого")
	// ErrInvalidSize — size не является десятичным числом.
	ErrInvalidSize = errors.New("некорректный размер миниатюры")

	// ErrJobPayloadInvalid — задание без userId/fileId или с некорректными
	// идентификаторами. Помечено queue.ErrPermanent: не повторяется.
	ErrJobPayloadInvalid = fmt.Errorf("некорректное задание миниатюр: %w", queue.ErrPermanent)
	// ErrJobFileUnresolved — файл задания не найден для указанного владельца.
	// Повторяется по политике очереди.
	ErrJobFileUnresolved = errors.New("файл задания не найден")
)

// ValidationError — отсутствующее или некорректное поле запроса.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "отсутствует или некорректно поле " + e.Field
}

// missing создаёт ValidationError для поля.
func missing(field string) error {
	return &ValidationError{Field: field}
}
