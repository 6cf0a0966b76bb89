// sweeper.go — периодический sweeper осиротевших файлов.
//
// Подстраховка для файлов, чей запрос упал до планирования очистки,
// или чьё отложенное удаление потерялось при рестарте процесса.
// По фиксированному тикеру (PERIODIC_CLEANUP_INTERVAL) вызывает
// SweepExpired(MAX_FILE_AGE) у Artifact Store. Файлы моложе maxAge
// не затрагиваются, поэтому активные запросы в безопасности, пока
// maxAge больше максимальной длительности запроса.
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

// Prometheus-метрики sweeper'а.
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_sweep_runs_total",
		Help: "Общее количество запусков sweeper'а.",
	})

	sweepFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых sweeper'ом.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "f2f_sweep_duration_seconds",
		Help:    "Длительность одного прохода sweeper'а в секундах.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// SweepResult — результат одного прохода sweeper'а.
type SweepResult struct {
	// Deleted — количество удалённых файлов
	Deleted int
	// Duration — длительность прохода
	Duration time.Duration
	// Err — ошибка сканирования директории (частичный проход)
	Err error
}

// SweeperService — периодический sweeper Artifact Store.
type SweeperService struct {
	store    *artifactstore.Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного RunOnce
	cancel context.CancelFunc
}

// NewSweeperService создаёт sweeper.
// interval — период запусков (PERIODIC_CLEANUP_INTERVAL),
// maxAge — порог возраста файла (MAX_FILE_AGE); всегда настраивается
// больше максимально правдоподобной длительности запроса.
func NewSweeperService(
	store *artifactstore.Store,
	interval time.Duration,
	maxAge time.Duration,
	logger *slog.Logger,
) *SweeperService {
	return &SweeperService{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину sweeper'а.
// Вызывается один раз при старте приложения.
func (sw *SweeperService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel

	go sw.run(sweepCtx)

	sw.logger.Info("Sweeper запущен",
		slog.String("interval", sw.interval.String()),
		slog.String("max_age", sw.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс. Выполняющийся проход
// завершается: RunOnce не прерывается отменой контекста.
func (sw *SweeperService) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.logger.Info("Sweeper остановлен")
}

// run — основной цикл фоновой горутины.
func (sw *SweeperService) run(ctx context.Context) {
	// Первый проход — сразу после старта: подбираем сирот
	// предыдущего процесса, не дожидаясь первого тика.
	sw.RunOnce()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce()
		}
	}
}

// RunOnce выполняет один проход sweeper'а. Потокобезопасен.
func (sw *SweeperService) RunOnce() *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()

	deleted, err := sw.store.SweepExpired(sw.maxAge)
	result := &SweepResult{
		Deleted:  deleted,
		Duration: time.Since(start),
		Err:      err,
	}

	sweepRunsTotal.Inc()
	sweepFilesDeletedTotal.Add(float64(deleted))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if err != nil {
		sw.logger.Error("Sweeper завершился с ошибкой",
			slog.Int("deleted", deleted),
			slog.String("error", err.Error()),
		)
		return result
	}

	if deleted > 0 {
		sw.logger.Info("Sweeper завершён",
			slog.Int("deleted", deleted),
			slog.Duration("duration", result.Duration),
		)
	} else {
		sw.logger.Debug("Sweeper завершён, нечего удалять",
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
