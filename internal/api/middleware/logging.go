// logging.go — журнал HTTP-запросов Files Manager через slog.
// Кроме статуса и длительности пишет шаблон маршрута chi, идентификатор
// файла, запрошенную миниатюру и вид предъявленного токена. Сам токен
// в журнал не попадает.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/files-manager/internal/auth"
)

// Вид токена в записи журнала.
const (
	TokenKindNone    = "none"
	TokenKindSession = "session"
	TokenKindJWT     = "jwt"
)

// responseWriter перехватывает статус-код и размер ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// TokenKind определяет вид токена запроса: none, session или jwt.
func TokenKind(r *http.Request) string {
	token := auth.TokenFromRequest(r)
	switch {
	case token == "":
		return TokenKindNone
	case auth.LooksLikeJWT(token):
		return TokenKindJWT
	default:
		return TokenKindSession
	}
}

// RequestLogger возвращает middleware журнала запросов.
//
// Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx). Успешные запросы
// /health/* и /metrics пишутся на DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			case isInfraPath(r.URL.Path):
				level = slog.LevelDebug
			}
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("token", TokenKind(r)),
				slog.String("remote_addr", r.RemoteAddr),
			}

			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
				if id := rctx.URLParam("id"); id != "" {
					attrs = append(attrs, slog.String("file_id", id))
				}
			}
			if size := r.URL.Query().Get("size"); size != "" {
				attrs = append(attrs, slog.String("size", size))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// isInfraPath — health-эндпоинты и метрики, которые опрашиваются постоянно.
func isInfraPath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health/")
}
