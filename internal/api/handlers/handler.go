// handler.go — основной обработчик API шлюза.
// Объединяет синхронную генерацию, асинхронные задачи и health endpoints.
//
// Контракт ошибок доменных endpoints: HTTP 200 и конверт
// {success:false, error:"..."} — клиенты различают исход по полю
// success, а не по статус-коду. Транспортные статусы (404, 405)
// остаются за роутером.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/duix-gateway/internal/service"
)

// APIHandler — основной обработчик API шлюза.
type APIHandler struct {
	generate    *service.GenerateService
	tasks       *service.TaskService
	dataDir     string
	promHandler http.Handler
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	generate *service.GenerateService,
	tasks *service.TaskService,
	dataDir string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		generate:    generate,
		tasks:       tasks,
		dataDir:     dataDir,
		promHandler: promhttp.Handler(),
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeFailure записывает доменную ошибку: HTTP 200, success=false.
func writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"error":   message,
	})
}
