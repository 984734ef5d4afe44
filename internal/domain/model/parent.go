// parent.go — ParentRef: явный вариант "корень | папка(id)" вместо
// неявного значения 0 для корня.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RootValue — внешнее представление корня (в документе и в JSON).
const RootValue = "0"

// ErrInvalidParentID — значение parentId не является ни корнем, ни ObjectID.
var ErrInvalidParentID = errors.New("некорректный parentId")

// ParentRef — ссылка на родителя записи.
// Нулевое значение — корень.
type ParentRef struct {
	id     primitive.ObjectID
	folder bool
}

// Root возвращает ссылку на корень.
func Root() ParentRef {
	return ParentRef{}
}

// Folder возвращает ссылку на папку с указанным идентификатором.
func Folder(id primitive.ObjectID) ParentRef {
	return ParentRef{id: id, folder: true}
}

// ParseParentRef разбирает внешнее значение parentId.
// Пустая строка и "0" означают корень.
func ParseParentRef(raw string) (ParentRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == RootValue {
		return Root(), nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return ParentRef{}, fmt.Errorf("%w: %q", ErrInvalidParentID, raw)
	}
	return Folder(id), nil
}

// IsRoot проверяет, что ссылка указывает на корень.
func (p ParentRef) IsRoot() bool {
	return !p.folder
}

// ID возвращает идентификатор папки-родителя и false для корня.
func (p ParentRef) ID() (primitive.ObjectID, bool) {
	return p.id, p.folder
}

// String возвращает "0" для корня или hex идентификатора.
func (p ParentRef) String() string {
	if !p.folder {
		return RootValue
	}
	return p.id.Hex()
}

// MarshalBSONValue хранит корень как int32(0), папку — как ObjectID.
func (p ParentRef) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !p.folder {
		return bson.MarshalValue(int32(0))
	}
	return bson.MarshalValue(p.id)
}

// UnmarshalBSONValue читает значение, записанное MarshalBSONValue.
// Числовой ноль, null и "0" трактуются как корень.
func (p *ParentRef) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.ObjectID:
		*p = Folder(raw.ObjectID())
		return nil
	case bsontype.Null, bsontype.Undefined:
		*p = Root()
		return nil
	case bsontype.Int32, bsontype.Int64, bsontype.Double:
		if n, ok := raw.AsInt64OK(); ok && n == 0 {
			*p = Root()
			return nil
		}
		return fmt.Errorf("%w: числовое значение отлично от 0", ErrInvalidParentID)
	case bsontype.String:
		ref, err := ParseParentRef(raw.StringValue())
		if err != nil {
			return err
		}
		*p = ref
		return nil
	default:
		return fmt.Errorf("%w: bson-тип %s", ErrInvalidParentID, t)
	}
}

// MarshalJSON отдаёт 0 для корня и строку hex для папки.
func (p ParentRef) MarshalJSON() ([]byte, error) {
	if !p.folder {
		return []byte(RootValue), nil
	}
	return json.Marshal(p.id.Hex())
}

// UnmarshalJSON принимает 0, "0", null или hex-строку.
func (p *ParentRef) UnmarshalJSON(data []byte) error {
	ref, err := ParseParentRef(RawParentID(data))
	if err != nil {
		return err
	}
	*p = ref
	return nil
}

// RawParentID приводит JSON-значение parentId (число, строка или null)
// к строке для ParseParentRef.
func RawParentID(data []byte) string {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return str
	}
	return s
}
