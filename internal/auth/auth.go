// Пакет auth — определение пользователя по предъявленному токену.
//
// Токен передаётся в заголовке X-Token или как Authorization: Bearer <token>.
// Токены сессий разрешаются через Session Store; при настроенном JWKS
// токены формата JWT проверяются по подписи RS256, пользователь — claim sub.
// Идентификатор пользователя обязан быть ObjectID.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HeaderToken — заголовок с токеном сессии.
const HeaderToken = "X-Token"

// ErrUnresolved — токен отсутствует, неизвестен, просрочен или
// указывает на некорректный идентификатор пользователя.
var ErrUnresolved = errors.New("токен не разрешён")

// ErrForbidden — токен действителен, но не содержит нужного scope.
var ErrForbidden = errors.New("недостаточно прав")

// Resolver разрешает токен в идентификатор пользователя.
// ErrUnresolved означает отказ; прочие ошибки — сбой инфраструктуры.
type Resolver interface {
	Resolve(ctx context.Context, token string) (primitive.ObjectID, error)
}

// SessionGetter — чтение сессий (sessionstore.Store).
type SessionGetter interface {
	Get(ctx context.Context, token string) (userID string, ok bool, err error)
}

// SessionResolver разрешает токены сессий через Session Store.
type SessionResolver struct {
	sessions SessionGetter
}

// NewSessionResolver создаёт SessionResolver.
func NewSessionResolver(sessions SessionGetter) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

// Resolve возвращает пользователя сессии.
func (s *SessionResolver) Resolve(ctx context.Context, token string) (primitive.ObjectID, error) {
	if token == "" {
		return primitive.NilObjectID, ErrUnresolved
	}

	userID, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("разрешение сессии: %w", err)
	}
	if !ok {
		return primitive.NilObjectID, ErrUnresolved
	}
	return ParseUserID(userID)
}

// Chain выбирает способ разрешения по виду токена: JWT (три сегмента
// через точку) — через JWTResolver, если он задан; остальное — через сессии.
type Chain struct {
	jwt      Resolver
	sessions Resolver
}

// NewChain создаёт цепочку. jwt может быть nil.
func NewChain(sessions, jwt Resolver) *Chain {
	return &Chain{jwt: jwt, sessions: sessions}
}

// Resolve разрешает токен.
func (c *Chain) Resolve(ctx context.Context, token string) (primitive.ObjectID, error) {
	if c.jwt != nil && LooksLikeJWT(token) {
		return c.jwt.Resolve(ctx, token)
	}
	return c.sessions.Resolve(ctx, token)
}

// LooksLikeJWT проверяет компактную форму JWT: header.payload.signature.
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2 && !strings.Contains(token, " ")
}

// ParseUserID приводит идентификатор пользователя к ObjectID.
func ParseUserID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: некорректный userId", ErrUnresolved)
	}
	return id, nil
}

// TokenFromRequest извлекает токен: X-Token, иначе Bearer из Authorization.
// Возвращает пустую строку, если токена нет.
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(HeaderToken)); token != "" {
		return token
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
