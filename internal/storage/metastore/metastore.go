// Пакет metastore — Metadata Store: записи файлов и папок в MongoDB.
// Клиент создаётся явно (Connect) и закрывается явно (Close);
// глобального состояния нет.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bigkaa/goartstore/files-manager/internal/domain/model"
)

const (
	// FilesCollection — коллекция записей файлов и папок.
	FilesCollection = "files"
	// UsersCollection — коллекция пользователей (ведётся внешним сервисом сессий).
	UsersCollection = "users"

	defaultTimeout   = 30 * time.Second
	defaultHeartbeat = 10 * time.Second
)

// ErrNotFound — запись не найдена.
var ErrNotFound = errors.New("запись не найдена")

// DialInfo — параметры подключения к MongoDB.
type DialInfo struct {
	Host   string
	Port   int
	DBName string
	User   string
	Pwd    string
}

// Addr возвращает host:port.
func (d DialInfo) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// URI строит строку подключения mongodb://.
func (d DialInfo) URI() string {
	uri := &url.URL{
		Scheme: "mongodb",
		Host:   d.Addr(),
		Path:   "/" + d.DBName,
	}
	if d.User != "" || d.Pwd != "" {
		uri.User = url.UserPassword(d.User, d.Pwd)
	}
	return uri.String()
}

// Store — Metadata Store поверх MongoDB.
type Store struct {
	cli    *mongo.Client
	files  *mongo.Collection
	users  *mongo.Collection
	logger *slog.Logger
}

// Connect подключается к MongoDB и проверяет соединение ping-ом,
// чтобы ошибки конфигурации проявлялись при старте, а не на первом запросе.
func Connect(ctx context.Context, dial DialInfo, logger *slog.Logger) (*Store, error) {
	logger = logger.With(slog.String("component", "metastore"))
	logger.Info("Подключение к MongoDB",
		slog.String("addr", dial.Addr()),
		slog.String("db", dial.DBName),
	)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(dial.URI()).
		SetConnectTimeout(defaultTimeout).
		SetServerSelectionTimeout(defaultTimeout).
		SetHeartbeatInterval(defaultHeartbeat).
		SetRetryReads(true).
		SetRetryWrites(true).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(300 * time.Second)

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("подключение к MongoDB: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return New(cli, dial.DBName, logger), nil
}

// New создаёт Store поверх уже подключённого клиента.
func New(cli *mongo.Client, dbName string, logger *slog.Logger) *Store {
	db := cli.Database(dbName)
	return &Store{
		cli:    cli,
		files:  db.Collection(FilesCollection),
		users:  db.Collection(UsersCollection),
		logger: logger,
	}
}

// EnsureIndexes создаёт индексы для выборок по владельцу/родителю и по localPath.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.files.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "parentId", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "localPath", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("создание индексов %s: %w", FilesCollection, err)
	}
	return nil
}

// Close отключается от MongoDB.
func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := s.cli.Disconnect(ctx); err != nil {
		return fmt.Errorf("отключение от MongoDB: %w", err)
	}
	s.logger.Info("Соединение с MongoDB закрыто")
	return nil
}

// Ping проверяет доступность MongoDB.
func (s *Store) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx, readpref.Primary())
}

// Insert вставляет запись. Идентификатор назначается при вставке
// и записывается в rec.ID.
func (s *Store) Insert(ctx context.Context, rec *model.FileRecord) error {
	rec.ID = primitive.NilObjectID

	res, err := s.files.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("вставка записи %q: %w", rec.Name, err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("вставка записи %q: неожиданный тип _id %T", rec.Name, res.InsertedID)
	}
	rec.ID = id
	return nil
}

// FindByID возвращает запись по идентификатору.
func (s *Store) FindByID(ctx context.Context, id primitive.ObjectID) (*model.FileRecord, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// FindByIDAndOwner возвращает запись по паре (идентификатор, владелец).
func (s *Store) FindByIDAndOwner(ctx context.Context, id, ownerID primitive.ObjectID) (*model.FileRecord, error) {
	return s.findOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: "userId", Value: ownerID},
	})
}

// ListByParent возвращает страницу записей владельца внутри родителя,
// упорядоченных по идентификатору. page начинается с 0.
func (s *Store) ListByParent(
	ctx context.Context,
	ownerID primitive.ObjectID,
	parent model.ParentRef,
	page, pageSize int,
) ([]*model.FileRecord, error) {
	filter := bson.D{
		{Key: "userId", Value: ownerID},
		{Key: "parentId", Value: parent},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page) * int64(pageSize)).
		SetLimit(int64(pageSize))

	cur, err := s.files.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("выборка записей родителя %s: %w", parent, err)
	}
	defer cur.Close(ctx)

	records := make([]*model.FileRecord, 0, pageSize)
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("декодирование записей родителя %s: %w", parent, err)
	}
	return records, nil
}

// ExistsByStoragePath проверяет, ссылается ли какая-либо запись на blob.
func (s *Store) ExistsByStoragePath(ctx context.Context, storagePath string) (bool, error) {
	n, err := s.files.CountDocuments(ctx,
		bson.D{{Key: "localPath", Value: storagePath}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("поиск записи по localPath %s: %w", storagePath, err)
	}
	return n > 0, nil
}

// CountFiles возвращает количество записей файлов и папок.
func (s *Store) CountFiles(ctx context.Context) (int64, error) {
	n, err := s.files.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("подсчёт %s: %w", FilesCollection, err)
	}
	return n, nil
}

// CountUsers возвращает количество пользователей.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("подсчёт %s: %w", UsersCollection, err)
	}
	return n, nil
}

// findOne — общий поиск одной записи.
func (s *Store) findOne(ctx context.Context, filter bson.D) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	err := s.files.FindOne(ctx, filter).Decode(rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск записи: %w", err)
	}
	return rec, nil
}
