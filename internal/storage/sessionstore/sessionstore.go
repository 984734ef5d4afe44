// Пакет sessionstore — Session Store: соответствие "токен сессии → userId" в Redis.
// Сессии выдаёт внешний сервис; здесь используется в основном Get.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix — префикс ключей сессий.
const DefaultKeyPrefix = "auth_"

// Store — Session Store поверх Redis.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New создаёт Session Store. Пустой prefix заменяется на DefaultKeyPrefix.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Key возвращает ключ Redis для токена.
func (s *Store) Key(token string) string {
	return s.prefix + token
}

// Get возвращает userId для токена. ok=false, если сессии нет или она истекла.
func (s *Store) Get(ctx context.Context, token string) (userID string, ok bool, err error) {
	if token == "" {
		return "", false, nil
	}

	userID, err = s.rdb.Get(ctx, s.Key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("чтение сессии: %w", err)
	}
	return userID, userID != "", nil
}

// Set сохраняет сессию с указанным временем жизни.
func (s *Store) Set(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.Key(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("запись сессии: %w", err)
	}
	return nil
}

// Del удаляет сессию.
func (s *Store) Del(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, s.Key(token)).Err(); err != nil {
		return fmt.Errorf("удаление сессии: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
