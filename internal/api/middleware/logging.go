// logging.go — slog-логирование HTTP-запросов шлюза.
//
// Каждому запросу присваивается request_id, возвращаемый клиенту в
// заголовке X-Request-Id: синхронная генерация держит соединение
// минутами, и идентификатор — способ связать запись лога с конкретным
// зависшим клиентом.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// loggingResponseWriter перехватывает статус-код и размер ответа.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.status = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lw.ResponseWriter.Write(b)
	lw.bytes += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

// RequestLogger возвращает middleware, логирующий завершение каждого
// HTTP-запроса: request_id, метод, путь, статус, длительность, размер
// ответа, remote_addr. Уровень записи определяется статус-кодом:
// INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New().String()[:8]
			w.Header().Set("X-Request-Id", requestID)

			lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(lw, r)

			level := slog.LevelInfo
			switch {
			case lw.status >= 500:
				level = slog.LevelError
			case lw.status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", lw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("bytes", lw.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
