// JWKS Mock Server — вспомогательный сервис для локальной среды Files Manager.
// При старте генерирует RSA ключевую пару, отдаёт JWKS по GET /jwks
// и по POST /token подписывает JWT, в котором sub — идентификатор пользователя.
// Files Manager принимает такие токены, если задан FM_JWKS_URL.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bigkaa/goartstore/files-manager/internal/auth"
)

const (
	keyID      = "fm-dev-key-1"
	defaultTTL = time.Hour
)

// jwksKey — один ключ JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// buildJWKS формирует JSON JWKS из публичного RSA ключа.
func buildJWKS(pub *rsa.PublicKey) ([]byte, error) {
	return json.Marshal(map[string][]jwksKey{
		"keys": {{
			Kty: "RSA",
			Kid: keyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// tokenRequest — тело POST /token.
type tokenRequest struct {
	// UserID — hex ObjectID пользователя; пусто — новый идентификатор
	UserID     string `json:"userId"`
	TTLSeconds int    `json:"ttlSeconds"`
	// Scopes попадают в claim "scopes", например files:maintenance
	Scopes []string `json:"scopes"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// issuer подписывает токены и отдаёт JWKS.
type issuer struct {
	key    *rsa.PrivateKey
	jwks   []byte
	now    func() time.Time
	logger *slog.Logger
}

func newIssuer(key *rsa.PrivateKey, logger *slog.Logger) (*issuer, error) {
	jwks, err := buildJWKS(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &issuer{key: key, jwks: jwks, now: time.Now, logger: logger}, nil
}

func (s *issuer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", s.handleJWKS)
	r.Post("/token", s.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (s *issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.jwks)
}

// handleToken выдаёт JWT для пользователя.
func (s *issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	userID := primitive.NewObjectID()
	if req.UserID != "" {
		id, err := primitive.ObjectIDFromHex(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid userId")
			return
		}
		userID = id
	}

	ttl := defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "jwks-mock",
		},
		ScopeArray: req.Scopes,
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		s.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	s.logger.Info("Токен выдан",
		slog.String("user_id", userID.Hex()),
		slog.Duration("ttl", ttl),
		slog.Any("scopes", req.Scopes),
	)
	writeJSON(w, http.StatusOK, tokenResponse{Token: signed, UserID: userID.Hex()})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := ":8080"
	if port := os.Getenv("MOCK_PORT"); port != "" {
		addr = ":" + port
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		logger.Error("Ошибка генерации RSA ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	s, err := newIssuer(key, logger)
	if err != nil {
		logger.Error("Ошибка сериализации JWKS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Запуск JWKS Mock Server", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
