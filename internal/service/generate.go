// generate.go — оркестратор синхронной генерации видео.
//
// Конечный автомат запроса: received → forwarding → {completed, failed}.
// Оркестратор валидирует вход, вызывает внутренний движок, спулит
// результат в зарегистрированный файл и планирует отложенную очистку.
// Файлы он не удаляет сам — только просит Store запланировать удаление.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/duix-gateway/internal/domain/model"
	"github.com/bigkaa/duix-gateway/internal/engineclient"
	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

// ErrInvalidInput — некорректные входные URL. Файлы при этой ошибке
// не создаются, движок не вызывается.
var ErrInvalidInput = errors.New("некорректные входные данные")

// Prometheus-метрики генерации.
var (
	generateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f2f_generate_total",
		Help: "Общее количество запросов генерации (по статусу).",
	}, []string{"status"})

	generateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "f2f_generate_duration_seconds",
		Help:    "Длительность синхронной генерации в секундах.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	generateRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_generate_retries_total",
		Help: "Количество повторов вызова движка при транзиентных отказах.",
	})
)

// GenerateResult — результат успешной генерации.
type GenerateResult struct {
	// RequestID — идентификатор запроса.
	RequestID string
	// VideoBase64 — сгенерированное видео в base64.
	VideoBase64 string
	// Size — размер видео в байтах (до кодирования).
	Size int
	// Format — формат контейнера.
	Format string
}

// GenerateService — оркестратор синхронной генерации.
type GenerateService struct {
	store        *artifactstore.Store
	engine       *engineclient.Client
	cleanupDelay time.Duration
	synthTimeout time.Duration
	logger       *slog.Logger

	// maxRetries — повторы вызова движка, только для Unreachable/Timeout.
	// Политика настраиваемая, по умолчанию один повтор.
	maxRetries int
}

// NewGenerateService создаёт оркестратор.
// cleanupDelay — задержка перед удалением файлов завершённого запроса
// (CLEANUP_DELAY); synthTimeout — дедлайн вызова движка (DUIX_SYNTH_TIMEOUT).
func NewGenerateService(
	store *artifactstore.Store,
	engine *engineclient.Client,
	cleanupDelay time.Duration,
	synthTimeout time.Duration,
	logger *slog.Logger,
) *GenerateService {
	return &GenerateService{
		store:        store,
		engine:       engine,
		cleanupDelay: cleanupDelay,
		synthTimeout: synthTimeout,
		logger:       logger.With(slog.String("component", "generate_service")),
		maxRetries:   1,
	}
}

// Generate выполняет полный цикл синхронной генерации.
//
// Pipeline:
//  1. received: валидация audio/video URL (без обращения к ФС и движку)
//  2. forwarding: вызов движка с дедлайном, до одного повтора при
//     транзиентном отказе
//  3. completed: спул результата в зарегистрированный файл, base64,
//     планирование очистки
//  4. failed: планирование очистки всего созданного, структурная ошибка
//
// Очистка планируется до возврата ответа и не зависит от того, удалось
// ли записать ответ клиенту.
func (s *GenerateService) Generate(ctx context.Context, audioURL, videoURL string) (*GenerateResult, error) {
	start := time.Now()

	req := &model.GenerationRequest{
		ID:       uuid.New().String(),
		AudioURL: audioURL,
		VideoURL: videoURL,
		Status:   model.StatusReceived,
	}

	// received: валидация без побочных эффектов
	if err := validateSourceURL(audioURL); err != nil {
		req.Status = model.StatusFailed
		generateTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: audio_url: %v", ErrInvalidInput, err)
	}
	if err := validateSourceURL(videoURL); err != nil {
		req.Status = model.StatusFailed
		generateTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: video_url: %v", ErrInvalidInput, err)
	}

	// Очистка всего созданного планируется при любом исходе
	defer s.scheduleRequestCleanup(req)

	// forwarding: вызов движка
	req.Status = model.StatusForwarding
	s.logger.Info("Запрос передан движку",
		slog.String("request_id", req.ID),
		slog.String("audio_url", audioURL),
		slog.String("video_url", videoURL),
	)

	video, err := s.synthesizeWithRetry(ctx, req)
	if err != nil {
		req.Status = model.StatusFailed
		generateTotal.WithLabelValues("engine_error").Inc()
		return nil, err
	}

	// Спул результата на диск: регистрация до записи, падение
	// процесса оставляет след для sweeper'а.
	req.OutputPath = s.store.NewPath("result", ".mp4")
	if _, err := s.store.Register(req.OutputPath); err != nil {
		req.Status = model.StatusFailed
		generateTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("регистрация файла результата: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, video, 0o640); err != nil {
		req.Status = model.StatusFailed
		generateTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("запись файла результата: %w", err)
	}

	// completed
	req.Status = model.StatusCompleted
	duration := time.Since(start)
	generateTotal.WithLabelValues("success").Inc()
	generateDuration.Observe(duration.Seconds())

	s.logger.Info("Генерация завершена",
		slog.String("request_id", req.ID),
		slog.Int("bytes", len(video)),
		slog.Duration("duration", duration),
	)

	return &GenerateResult{
		RequestID:   req.ID,
		VideoBase64: base64.StdEncoding.EncodeToString(video),
		Size:        len(video),
		Format:      "mp4",
	}, nil
}

// synthesizeWithRetry вызывает движок с дедлайном и повторяет вызов
// не более maxRetries раз, только при транзиентных отказах
// (Unreachable/Timeout). Ответ движка об ошибке не повторяется.
func (s *GenerateService) synthesizeWithRetry(ctx context.Context, req *model.GenerationRequest) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			generateRetriesTotal.Inc()
			s.logger.Warn("Повтор вызова движка",
				slog.String("request_id", req.ID),
				slog.Int("attempt", attempt+1),
				slog.String("error", lastErr.Error()),
			)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.synthTimeout)
		video, err := s.engine.Synthesize(callCtx, req.AudioURL, req.VideoURL)
		cancel()

		if err == nil {
			return video, nil
		}
		lastErr = err

		if !engineclient.Retryable(err) {
			break
		}
	}

	return nil, lastErr
}

// scheduleRequestCleanup планирует отложенную очистку всех файлов
// запроса. Ошибки реестра логируются, но не прерывают обработку:
// sweeper подстрахует.
func (s *GenerateService) scheduleRequestCleanup(req *model.GenerationRequest) {
	paths := make([]string, 0, len(req.InputPaths)+1)
	paths = append(paths, req.InputPaths...)
	if req.OutputPath != "" {
		paths = append(paths, req.OutputPath)
	}

	for _, path := range paths {
		if err := s.store.ScheduleCleanup(path, s.cleanupDelay); err != nil {
			s.logger.Error("Ошибка планирования очистки",
				slog.String("request_id", req.ID),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// validateSourceURL проверяет, что значение — непустой абсолютный
// http(s) URL.
func validateSourceURL(raw string) error {
	if raw == "" {
		return errors.New("пустой URL")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return errors.New("URL должен быть абсолютным")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("неподдерживаемая схема %q", parsed.Scheme)
	}
	return nil
}
