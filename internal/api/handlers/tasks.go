// tasks.go — обработчики асинхронного цикла задач.
// POST /api/submit_task — постановка задачи, немедленный возврат кода
// GET  /api/query_task  — статус задачи у движка
// GET  /api/get_result  — выдача готового видео и запуск очистки
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
)

// submitTaskRequest — тело запроса постановки задачи.
type submitTaskRequest struct {
	AudioURL string `json:"audio_url"`
	VideoURL string `json:"video_url"`
}

// submitTaskResponse — успешный ответ постановки задачи.
type submitTaskResponse struct {
	Success  bool   `json:"success"`
	TaskCode string `json:"task_code"`
}

// queryTaskResponse — ответ запроса статуса задачи.
type queryTaskResponse struct {
	Success bool           `json:"success"`
	Code    int            `json:"code"`
	Data    map[string]any `json:"data"`
}

// SubmitTask — реализация POST /api/submit_task.
func (h *APIHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, "некорректное тело запроса: "+err.Error())
		return
	}

	code, err := h.tasks.Submit(r.Context(), req.AudioURL, req.VideoURL)
	if err != nil {
		h.logger.Error("Ошибка постановки задачи",
			slog.String("audio_url", req.AudioURL),
			slog.String("video_url", req.VideoURL),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitTaskResponse{
		Success:  true,
		TaskCode: code,
	})
}

// QueryTask — реализация GET /api/query_task?task_code=...
func (h *APIHandler) QueryTask(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("task_code")
	if code == "" {
		writeFailure(w, "не указан task_code")
		return
	}

	result, err := h.tasks.Query(r.Context(), code)
	if err != nil {
		h.logger.Error("Ошибка запроса статуса задачи",
			slog.String("task_code", code),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryTaskResponse{
		Success: true,
		Code:    result.Code,
		Data:    result.Data,
	})
}

// GetResult — реализация GET /api/get_result?filename=...&task_code=...
// task_code опционален: без него входы задачи очистит sweeper.
func (h *APIHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeFailure(w, "не указан filename")
		return
	}
	code := r.URL.Query().Get("task_code")

	data, err := h.tasks.GetResult(filename, code)
	if err != nil {
		h.logger.Error("Ошибка выдачи результата",
			slog.String("filename", filename),
			slog.String("task_code", code),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"video_data": base64.StdEncoding.EncodeToString(data),
		"size":       len(data),
		"format":     "mp4",
	})
}
