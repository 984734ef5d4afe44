// Пакет model — доменные модели Files Manager.
// FileRecord — единая структура записи файла/папки, используется
// как документ коллекции files в MongoDB и как тело API-ответа.
package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FileKind — тип записи.
type FileKind string

const (
	// KindFolder — папка, не имеет содержимого в Blob Store
	KindFolder FileKind = "folder"
	// KindFile — произвольный файл
	KindFile FileKind = "file"
	// KindImage — изображение, для которого генерируются миниатюры
	KindImage FileKind = "image"
)

// ParseFileKind проверяет строковое значение типа записи.
func ParseFileKind(s string) (FileKind, bool) {
	switch k := FileKind(s); k {
	case KindFolder, KindFile, KindImage:
		return k, true
	default:
		return "", false
	}
}

// ThumbnailWidths — ширины миниатюр, от большей к меньшей.
var ThumbnailWidths = []int{500, 250, 100}

// FileRecord — запись файла или папки.
type FileRecord struct {
	// ID — идентификатор документа, назначается при вставке
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`

	// OwnerID — пользователь, создавший запись (из сессии, не из запроса)
	OwnerID primitive.ObjectID `bson:"userId" json:"userId"`

	// Name — отображаемое имя
	Name string `bson:"name" json:"name"`

	// Kind — folder, file или image
	Kind FileKind `bson:"type" json:"type"`

	// IsPublic — доступна ли запись без сессии владельца
	IsPublic bool `bson:"isPublic" json:"isPublic"`

	// ParentID — корень или папка-родитель
	ParentID ParentRef `bson:"parentId" json:"parentId"`

	// StoragePath — имя blob-а в Blob Store. Пусто для папок.
	StoragePath string `bson:"localPath" json:"localPath"`
}

// IsFolder проверяет, что запись — папка.
func (r *FileRecord) IsFolder() bool {
	return r.Kind == KindFolder
}

// ThumbnailJob — задание генерации миниатюр.
// Идентификаторы передаются строками (hex ObjectID) и нормализуются
// обработчиком перед сравнением.
type ThumbnailJob struct {
	UserID string `json:"userId"`
	FileID string `json:"fileId"`
}
