// Пакет model — доменные модели Duix Gateway.
// ManagedFile — временный файл под управлением Artifact Store,
// GenerationRequest — состояние одного запроса генерации,
// TaskRecord — запись асинхронной задачи Face2Face.
package model

import "time"

// FileState — состояние управляемого файла.
type FileState string

const (
	// StateActive — файл используется выполняющимся запросом.
	StateActive FileState = "active"
	// StatePendingCleanup — запрос завершён, файл ожидает отложенного удаления.
	StatePendingCleanup FileState = "pending-cleanup"
	// StateDeleted — файл удалён (терминальное состояние).
	StateDeleted FileState = "deleted"
)

// ManagedFile — временный файл, отслеживаемый Artifact Store.
// Переходы состояний строго монотонны: active → pending-cleanup → deleted.
// Файл никогда не возвращается в active.
type ManagedFile struct {
	// Path — абсолютный путь файла внутри управляемой директории.
	// После регистрации файлом владеет исключительно Artifact Store.
	Path string
	// CreatedAt — момент регистрации файла.
	CreatedAt time.Time
	// CleanupAt — запланированный момент удаления.
	// Нулевое значение — удаление не запланировано.
	CleanupAt time.Time
	// State — текущее состояние файла.
	State FileState
}

// RequestStatus — статус запроса генерации.
type RequestStatus string

const (
	// StatusReceived — запрос принят, валидация входных данных.
	StatusReceived RequestStatus = "received"
	// StatusForwarding — запрос передан внутреннему движку.
	StatusForwarding RequestStatus = "forwarding"
	// StatusCompleted — генерация завершена успешно.
	StatusCompleted RequestStatus = "completed"
	// StatusFailed — запрос завершился ошибкой.
	StatusFailed RequestStatus = "failed"
)

// GenerationRequest — состояние одного синхронного запроса генерации.
// Мутируется только оркестратором, обрабатывающим этот запрос.
// Два запроса никогда не разделяют один ManagedFile.
type GenerationRequest struct {
	// ID — уникальный идентификатор запроса (UUID, создаётся при приёме).
	ID string
	// AudioURL — URL исходного аудио.
	AudioURL string
	// VideoURL — URL референсного видео.
	VideoURL string
	// InputPaths — пути локальных входных файлов запроса.
	InputPaths []string
	// OutputPath — путь локального файла результата.
	OutputPath string
	// Status — текущий статус запроса.
	Status RequestStatus
}

// TaskRecord — запись асинхронной Face2Face задачи.
// Связывает код задачи с локальными файлами, чтобы при получении
// результата запланировать точную очистку входов.
type TaskRecord struct {
	// Code — код задачи, выданный при отправке во внутренний движок.
	Code string `json:"code"`
	// AudioPath — локальный путь скачанного аудио.
	AudioPath string `json:"audio_path"`
	// VideoPath — локальный путь скачанного видео.
	VideoPath string `json:"video_path"`
	// ResultPath — локальный путь файла результата (заполняется при получении).
	ResultPath string `json:"result_path,omitempty"`
	// CreatedAt — момент отправки задачи.
	CreatedAt time.Time `json:"created_at"`
}
