// cleanup.go — фоновый worker отложенного удаления файлов.
//
// Вместо таймера на каждый файл работает один poller: по тикеру
// забирает у Artifact Store записи pending-cleanup с наступившим
// cleanupAt и удаляет их. Ресурсы ограничены одной горутиной
// независимо от количества запросов.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

// Prometheus-метрики отложенной очистки.
var (
	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_cleanup_deleted_total",
		Help: "Общее количество файлов, удалённых worker'ом отложенной очистки.",
	})

	cleanupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_cleanup_errors_total",
		Help: "Количество ошибок удаления в worker'е отложенной очистки.",
	})
)

// CleanupWorker — единственный poller отложенных удалений.
type CleanupWorker struct {
	store    *artifactstore.Store
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного RunOnce
	cancel context.CancelFunc
}

// NewCleanupWorker создаёт worker отложенной очистки.
// interval — период опроса реестра; на порядок меньше CLEANUP_DELAY,
// чтобы фактическое удаление происходило близко к cleanupAt.
func NewCleanupWorker(store *artifactstore.Store, interval time.Duration, logger *slog.Logger) *CleanupWorker {
	return &CleanupWorker{
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "cleanup_worker")),
	}
}

// Start запускает фоновую горутину worker'а.
// Вызывается один раз при старте приложения.
func (w *CleanupWorker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.run(workerCtx)

	w.logger.Info("Worker отложенной очистки запущен",
		slog.String("interval", w.interval.String()),
	)
}

// Stop останавливает фоновую горутину.
func (w *CleanupWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Info("Worker отложенной очистки остановлен")
}

// run — основной цикл фоновой горутины.
func (w *CleanupWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce удаляет все файлы, чей cleanupAt наступил.
// Возвращает количество удалённых. Потокобезопасен.
func (w *CleanupWorker) RunOnce() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	due := w.store.DueForCleanup()
	if len(due) == 0 {
		return 0
	}

	deleted := 0
	for _, path := range due {
		if err := w.store.DeleteNow(path); err != nil {
			w.logger.Error("Ошибка отложенного удаления",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			cleanupErrorsTotal.Inc()
			continue
		}
		deleted++
	}

	cleanupDeletedTotal.Add(float64(deleted))
	w.logger.Debug("Отложенная очистка выполнена", slog.Int("deleted", deleted))
	return deleted
}
