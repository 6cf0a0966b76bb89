package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	requestID := rec.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Fatal("Заголовок X-Request-Id не установлен")
	}
	if !strings.Contains(buf.String(), "request_id="+requestID) {
		t.Errorf("request_id %s отсутствует в логе: %s", requestID, buf.String())
	}
	if !strings.Contains(buf.String(), "level=INFO") {
		t.Errorf("Успешный запрос должен логироваться на INFO: %s", buf.String())
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if !strings.Contains(buf.String(), tc.level) {
			t.Errorf("Статус %d: ожидался %s, лог: %s", tc.status, tc.level, buf.String())
		}
	}
}
