// Точка входа Duix Gateway — шлюза перед движком Face2Face.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/duix-gateway/internal/api/handlers"
	"github.com/bigkaa/duix-gateway/internal/api/middleware"
	"github.com/bigkaa/duix-gateway/internal/config"
	"github.com/bigkaa/duix-gateway/internal/downloader"
	"github.com/bigkaa/duix-gateway/internal/engineclient"
	"github.com/bigkaa/duix-gateway/internal/server"
	"github.com/bigkaa/duix-gateway/internal/service"
	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Duix Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("internal_url", cfg.InternalURL),
		slog.String("data_dir", cfg.DataDir),
	)

	// --- Инициализация компонентов ---

	// 1. Artifact Store — недоступная директория данных фатальна
	store, err := artifactstore.New(cfg.DataDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации Artifact Store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Клиент внутреннего движка и загрузчик исходных медиа
	engine := engineclient.New(cfg.InternalURL, cfg.SynthTimeout, logger)
	dl := downloader.New(store, cfg.DownloadTimeout, logger)

	// 3. Сервисы
	generateSvc := service.NewGenerateService(store, engine, cfg.CleanupDelay, cfg.SynthTimeout, logger)
	taskSvc := service.NewTaskService(
		store, engine, dl,
		cfg.TaskCacheSize, cfg.MaxFileAge,
		cfg.EngineDataDir, cfg.CleanupDelay,
		logger,
	)

	// 4. Фоновые процессы
	ctx := context.Background()

	// 4.1 Cleanup worker — отложенное удаление файлов запросов.
	// Интервал опроса короче CLEANUP_DELAY: фактическое удаление
	// происходит не позже delay + 1s после планирования.
	cleanupWorker := service.NewCleanupWorker(store, time.Second, logger)
	cleanupWorker.Start(ctx)

	// 4.2 Sweeper — периодическая уборка устаревших файлов
	sweeper := service.NewSweeperService(store, cfg.PeriodicCleanupInterval, cfg.MaxFileAge, logger)
	sweeper.Start(ctx)

	// 4.3 topologymetrics — мониторинг внутреннего движка
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"duix-gateway",
		"f2f",
		cfg.InternalURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("engine_url", cfg.InternalURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 5. Handlers
	apiHandler := handlers.NewAPIHandler(generateSvc, taskSvc, store.DataDir(), logger)

	// 6. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	cleanupWorker.Stop()
	sweeper.Stop()
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}

	logger.Info("Duix Gateway остановлен")
}
