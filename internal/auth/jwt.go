// jwt.go — разрешение JWT-токенов через JWKS (RS256).
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScopeMaintenance — scope служебных операций (сверка хранилища).
const ScopeMaintenance = "files:maintenance"

// Claims — JWT claims Files Manager.
// Поддерживает два формата scopes:
//   - Keycloak стандартный: "scope" (пробело-разделённая строка)
//   - Кастомный: "scopes" (массив строк)
type Claims struct {
	jwt.RegisteredClaims
	ScopeString string   `json:"scope"`
	ScopeArray  []string `json:"scopes"`
}

// Scopes возвращает объединённый список scope'ов из обоих форматов.
func (c *Claims) Scopes() []string {
	var result []string
	if c.ScopeString != "" {
		result = append(result, strings.Fields(c.ScopeString)...)
	}
	result = append(result, c.ScopeArray...)
	return result
}

// JWTResolver проверяет JWT по ключам JWKS и возвращает sub.
type JWTResolver struct {
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// JWTConfig — параметры JWTResolver.
type JWTConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Путь к CA-сертификату (опционально)
	CACertPath string
	// Пропускать проверку TLS-сертификатов
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// NewJWTResolver создаёт JWTResolver с JWKS из указанного URL.
func NewJWTResolver(cfg JWTConfig, logger *slog.Logger) (*JWTResolver, error) {
	httpClient, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	// NoErrorReturnFirstHTTPReq позволяет стартовать, даже если JWKS endpoint
	// ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTResolverWithKeyfunc(k, cfg.JWTLeeway, logger), nil
}

// NewJWTResolverWithKeyfunc создаёт JWTResolver с готовой keyfunc.
func NewJWTResolverWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTResolver {
	return &JWTResolver{
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// buildHTTPClient создаёт HTTP-клиент с настроенным TLS и таймаутом.
func buildHTTPClient(cfg JWTConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // настраивается через FM_JWKS_TLS_SKIP_VERIFY
	}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Timeout: cfg.ClientTimeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// Resolve проверяет подпись (RS256), exp/nbf и возвращает sub как ObjectID.
func (j *JWTResolver) Resolve(ctx context.Context, token string) (primitive.ObjectID, error) {
	_, userID, err := j.parse(ctx, token)
	return userID, err
}

// Authorize разрешает токен и требует наличия scope.
// ErrUnresolved — токен недействителен, ErrForbidden — scope отсутствует.
func (j *JWTResolver) Authorize(ctx context.Context, token, scope string) (primitive.ObjectID, error) {
	claims, userID, err := j.parse(ctx, token)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if !slices.Contains(claims.Scopes(), scope) {
		j.logger.Debug("Недостаточно прав",
			slog.String("user_id", userID.Hex()),
			slog.String("scope", scope),
		)
		return primitive.NilObjectID, ErrForbidden
	}
	return userID, nil
}

func (j *JWTResolver) parse(ctx context.Context, token string) (*Claims, primitive.ObjectID, error) {
	if token == "" {
		return nil, primitive.NilObjectID, ErrUnresolved
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, j.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		if err != nil {
			j.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		}
		return nil, primitive.NilObjectID, ErrUnresolved
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, primitive.NilObjectID, ErrUnresolved
	}
	userID, err := ParseUserID(subject)
	if err != nil {
		return nil, primitive.NilObjectID, err
	}
	return claims, userID, nil
}
