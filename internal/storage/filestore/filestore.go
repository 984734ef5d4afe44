// Пакет filestore — Blob Store: операции с байтами файлов и миниатюр на диске.
// Файлы адресуются случайным именем (UUID) внутри корневой директории,
// миниатюры — производным именем {имя}_{размер}.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotExist — blob отсутствует в хранилище.
var ErrNotExist = errors.New("blob не найден")

// ErrInvalidName — имя blob-а выходит за пределы корневой директории.
var ErrInvalidName = errors.New("недопустимое имя blob-а")

// tmpSuffix — суффикс временных файлов при атомарной записи.
// Полное имя временного файла: {имя}.{случайная часть}.tmp.
const tmpSuffix = ".tmp"

// FileStore — управление blob-ами на диске.
type FileStore struct {
	// root — корневая директория хранения (FM_FOLDER_PATH)
	root string
}

// WriteResult — результат записи blob-а.
type WriteResult struct {
	// StoragePath — имя blob-а относительно root
	StoragePath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// BlobInfo — сведения о blob-е для сверки.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore. Директория создаётся при первой записи.
func New(root string) *FileStore {
	return &FileStore{root: root}
}

// NewName генерирует новое уникальное имя blob-а.
func NewName() string {
	return uuid.New().String()
}

// ThumbnailName возвращает имя производного blob-а: {storagePath}_{variant}.
func ThumbnailName(storagePath, variant string) string {
	return storagePath + "_" + variant
}

// IsDerivedName проверяет, является ли имя производным ({имя}_{цифры}).
func IsDerivedName(name string) bool {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return false
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Write атомарно записывает данные под именем name.
// Паттерн: mkdir root → temp файл → запись → fsync → atomic rename.
// Существующий blob с тем же именем перезаписывается. Временный файл
// получает уникальное имя, поэтому параллельные записи одного blob-а
// (повторная доставка задания миниатюр) не мешают друг другу.
func (fs *FileStore) Write(name string, data []byte) (*WriteResult, error) {
	fullPath, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(fs.root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранения %s: %w", fs.root, err)
	}

	f, err := os.CreateTemp(fs.root, name+".*"+tmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	sum := sha256.Sum256(data)
	return &WriteResult{
		StoragePath: name,
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// Read читает blob целиком. Возвращает ошибку, оборачивающую ErrNotExist,
// если blob отсутствует.
func (fs *FileStore) Read(name string) ([]byte, error) {
	fullPath, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, fmt.Errorf("ошибка чтения blob-а %s: %w", name, err)
	}
	return data, nil
}

// Delete удаляет blob. Отсутствие blob-а ошибкой не является.
func (fs *FileStore) Delete(name string) error {
	fullPath, err := fs.resolve(name)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления blob-а %s: %w", name, err)
	}
	return nil
}

// List возвращает blob-ы корневой директории (без временных файлов и поддиректорий).
// Отсутствующая корневая директория — пустой список.
func (fs *FileStore) List() ([]BlobInfo, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.root, err)
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Файл мог быть удалён между ReadDir и Info
			continue
		}
		blobs = append(blobs, BlobInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

// RemoveStaleTemp удаляет временные файлы прерванных записей,
// изменённые раньше before. Возвращает имена удалённых файлов.
// Отсутствующая корневая директория — пустой результат.
func (fs *FileStore) RemoveStaleTemp(before time.Time) ([]string, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.root, err)
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.root, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("ошибка удаления временного файла %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Root возвращает корневую директорию хранения.
func (fs *FileStore) Root() string {
	return fs.root
}

// resolve проверяет имя и возвращает полный путь.
// Имя должно быть одним компонентом пути.
func (fs *FileStore) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(fs.root, name), nil
}
