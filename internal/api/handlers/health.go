// health.go — сервисные endpoints шлюза.
// /            — информация о сервисе
// /health      — состояние процесса и директории данных
// /debug/tasks — снимок реестра асинхронных задач
//
// /health не трогает блокировку Artifact Store: проверяется только
// существование директории, поэтому endpoint отвечает даже при
// нагруженном реестре.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/duix-gateway/internal/config"
)

// healthResponse — ответ /health.
type healthResponse struct {
	Status        string  `json:"status"`
	DataDir       string  `json:"data_dir"`
	DataDirExists bool    `json:"data_dir_exists"`
	ActiveTasks   int     `json:"active_tasks"`
	Timestamp     float64 `json:"timestamp"`
}

// Health — реализация GET /health.
// healthy, если директория данных существует; unhealthy иначе.
func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	_, err := os.Stat(h.dataDir)
	exists := err == nil

	status := "healthy"
	if !exists {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		DataDir:       h.dataDir,
		DataDirExists: exists,
		ActiveTasks:   h.tasks.ActiveTasks(),
		Timestamp:     float64(time.Now().UnixNano()) / 1e9,
	})
}

// Root — реализация GET /. Информация о сервисе.
func (h *APIHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Duix Face2Face Gateway",
		"version": config.Version,
		"status":  "running",
	})
}

// DebugTasks — реализация GET /debug/tasks.
// Снимок реестра задач и количество файлов в директории данных.
func (h *APIHandler) DebugTasks(w http.ResponseWriter, _ *http.Request) {
	filesInDir := -1
	if entries, err := os.ReadDir(h.dataDir); err == nil {
		filesInDir = len(entries)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_tasks": h.tasks.ActiveTasks(),
		"files_in_dir": filesInDir,
		"data_dir":     filepath.Clean(h.dataDir),
		"task_files":   h.tasks.TaskFiles(),
	})
}
