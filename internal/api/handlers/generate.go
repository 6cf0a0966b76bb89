// generate.go — обработчик POST /api/generate_video.
// Синхронная генерация: запрос блокируется до готовности видео.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// generateRequest — тело запроса генерации.
type generateRequest struct {
	AudioURL string `json:"audio_url"`
	VideoURL string `json:"video_url"`
}

// generateResponse — успешный ответ генерации.
type generateResponse struct {
	Success   bool   `json:"success"`
	VideoData string `json:"video_data"`
	Size      int    `json:"size"`
	Format    string `json:"format"`
}

// GenerateVideo — реализация POST /api/generate_video.
func (h *APIHandler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, "некорректное тело запроса: "+err.Error())
		return
	}

	result, err := h.generate.Generate(r.Context(), req.AudioURL, req.VideoURL)
	if err != nil {
		h.logger.Error("Ошибка генерации видео",
			slog.String("audio_url", req.AudioURL),
			slog.String("video_url", req.VideoURL),
			slog.String("error", err.Error()),
		)
		writeFailure(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success:   true,
		VideoData: result.VideoBase64,
		Size:      result.Size,
		Format:    result.Format,
	})
}
