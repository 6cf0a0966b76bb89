// tasks.go — сервис асинхронных Face2Face задач.
//
// Трёхфазный цикл: Submit скачивает исходные медиа в управляемую
// директорию и ставит задачу движку; Query проксирует статус;
// GetResult читает готовое видео из {data_dir}/temp и планирует
// очистку результата вместе со входами задачи.
//
// Реестр задач — expirable LRU с TTL = MAX_FILE_AGE: записи упавших
// клиентов, так и не забравших результат, выбывают сами, а их файлы
// подбирает sweeper.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/duix-gateway/internal/domain/model"
	"github.com/bigkaa/duix-gateway/internal/downloader"
	"github.com/bigkaa/duix-gateway/internal/engineclient"
	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

// Поддиректория управляемой директории, куда движок кладёт результаты.
const resultSubdir = "temp"

// Prometheus-метрики задач.
var (
	tasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f2f_tasks_submitted_total",
		Help: "Общее количество постановок асинхронных задач (по статусу).",
	}, []string{"status"})

	taskResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f2f_task_results_total",
		Help: "Общее количество выдач результатов задач (по статусу).",
	}, []string{"status"})
)

// TaskService — сервис асинхронных задач.
type TaskService struct {
	store        *artifactstore.Store
	engine       *engineclient.Client
	dl           *downloader.Downloader
	tasks        *expirable.LRU[string, *model.TaskRecord]
	engineDir    string // директория данных глазами движка (DUIX_ENGINE_DATA_DIR)
	cleanupDelay time.Duration
	logger       *slog.Logger
}

// NewTaskService создаёт сервис асинхронных задач.
// cacheSize — ёмкость LRU реестра задач (DUIX_TASK_CACHE_SIZE),
// maxAge — TTL записи задачи (MAX_FILE_AGE),
// engineDir — путь управляемой директории внутри контейнера движка.
func NewTaskService(
	store *artifactstore.Store,
	engine *engineclient.Client,
	dl *downloader.Downloader,
	cacheSize int,
	maxAge time.Duration,
	engineDir string,
	cleanupDelay time.Duration,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		store:        store,
		engine:       engine,
		dl:           dl,
		tasks:        expirable.NewLRU[string, *model.TaskRecord](cacheSize, nil, maxAge),
		engineDir:    engineDir,
		cleanupDelay: cleanupDelay,
		logger:       logger.With(slog.String("component", "task_service")),
	}
}

// Submit скачивает исходные медиа, ставит задачу движку и возвращает
// код задачи. При любой ошибке уже скачанные файлы удаляются сразу —
// частичных артефактов после неуспешной постановки не остаётся.
func (ts *TaskService) Submit(ctx context.Context, audioURL, videoURL string) (string, error) {
	if err := validateSourceURL(audioURL); err != nil {
		tasksSubmittedTotal.WithLabelValues("invalid_input").Inc()
		return "", fmt.Errorf("%w: audio_url: %v", ErrInvalidInput, err)
	}
	if err := validateSourceURL(videoURL); err != nil {
		tasksSubmittedTotal.WithLabelValues("invalid_input").Inc()
		return "", fmt.Errorf("%w: video_url: %v", ErrInvalidInput, err)
	}

	audioPath, err := ts.dl.Fetch(ctx, audioURL, "audio")
	if err != nil {
		tasksSubmittedTotal.WithLabelValues("download_error").Inc()
		return "", err
	}

	videoPath, err := ts.dl.Fetch(ctx, videoURL, "video")
	if err != nil {
		ts.discard(audioPath)
		tasksSubmittedTotal.WithLabelValues("download_error").Inc()
		return "", err
	}

	code := uuid.New().String()
	err = ts.engine.Submit(ctx, ts.enginePath(audioPath), ts.enginePath(videoPath), code)
	if err != nil {
		ts.discard(audioPath)
		ts.discard(videoPath)
		tasksSubmittedTotal.WithLabelValues("engine_error").Inc()
		return "", err
	}

	ts.tasks.Add(code, &model.TaskRecord{
		Code:      code,
		AudioPath: audioPath,
		VideoPath: videoPath,
		CreatedAt: time.Now().UTC(),
	})

	tasksSubmittedTotal.WithLabelValues("success").Inc()
	ts.logger.Info("Задача поставлена",
		slog.String("task_code", code),
		slog.String("audio_path", audioPath),
		slog.String("video_path", videoPath),
	)
	return code, nil
}

// Query проксирует статус задачи от движка.
func (ts *TaskService) Query(ctx context.Context, code string) (*engineclient.QueryResult, error) {
	return ts.engine.Query(ctx, code)
}

// GetResult читает файл результата из {data_dir}/temp, регистрирует
// его в Store и планирует отложенную очистку результата и входов
// задачи. Возвращает сырые байты видео.
//
// filename приводится к basename — traversal через имя файла из
// запроса невозможен. code опционален: без него очистятся только
// результат (и входы — sweeper'ом по возрасту).
func (ts *TaskService) GetResult(filename, code string) ([]byte, error) {
	resultPath := filepath.Join(ts.store.DataDir(), resultSubdir, filepath.Base(filename))

	data, err := os.ReadFile(resultPath)
	if err != nil {
		taskResultsTotal.WithLabelValues("not_found").Inc()
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл результата не существует: %s", filepath.Base(filename))
		}
		return nil, fmt.Errorf("чтение файла результата: %w", err)
	}

	// Файл создан движком и до сих пор не отслеживался — регистрируем,
	// чтобы очистка шла через Store.
	if _, err := ts.store.Register(resultPath); err != nil {
		// Повторный GetResult того же файла — запись уже существует
		ts.logger.Debug("Файл результата уже зарегистрирован",
			slog.String("path", resultPath),
			slog.String("error", err.Error()),
		)
	}

	if err := ts.store.ScheduleCleanup(resultPath, ts.cleanupDelay); err != nil {
		ts.logger.Error("Ошибка планирования очистки результата",
			slog.String("path", resultPath),
			slog.String("error", err.Error()),
		)
	}

	// Точная очистка входов по записи задачи
	if code != "" {
		if rec, ok := ts.tasks.Get(code); ok {
			for _, path := range []string{rec.AudioPath, rec.VideoPath} {
				if schedErr := ts.store.ScheduleCleanup(path, ts.cleanupDelay); schedErr != nil {
					ts.logger.Error("Ошибка планирования очистки входа задачи",
						slog.String("task_code", code),
						slog.String("path", path),
						slog.String("error", schedErr.Error()),
					)
				}
			}
			ts.tasks.Remove(code)
		} else {
			ts.logger.Warn("Запись задачи не найдена, входы очистит sweeper",
				slog.String("task_code", code),
			)
		}
	}

	taskResultsTotal.WithLabelValues("success").Inc()
	ts.logger.Info("Результат выдан",
		slog.String("task_code", code),
		slog.String("path", resultPath),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// ActiveTasks возвращает количество задач в реестре.
func (ts *TaskService) ActiveTasks() int {
	return ts.tasks.Len()
}

// TaskFiles возвращает снимок реестра задач (для /debug/tasks).
func (ts *TaskService) TaskFiles() map[string]*model.TaskRecord {
	snapshot := make(map[string]*model.TaskRecord, ts.tasks.Len())
	for _, code := range ts.tasks.Keys() {
		if rec, ok := ts.tasks.Peek(code); ok {
			copied := *rec
			snapshot[code] = &copied
		}
	}
	return snapshot
}

// discard немедленно удаляет файл неуспешной постановки.
func (ts *TaskService) discard(path string) {
	if err := ts.store.DeleteNow(path); err != nil {
		ts.logger.Warn("Ошибка удаления файла неуспешной задачи",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// enginePath переводит локальный путь файла в путь, видимый движку:
// общая директория смонтирована в контейнер движка под engineDir.
func (ts *TaskService) enginePath(localPath string) string {
	return filepath.Join(ts.engineDir, filepath.Base(localPath))
}
