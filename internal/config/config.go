// Пакет config — загрузка и валидация конфигурации Duix Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Duix Gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Внутренний движок ---

	// Базовый URL внутреннего движка Face2Face
	InternalURL string
	// Дедлайн одного вызова синхронного синтеза
	SynthTimeout time.Duration
	// Дедлайн одной загрузки исходного медиа
	DownloadTimeout time.Duration
	// Путь директории данных глазами контейнера движка
	EngineDataDir string

	// --- Файлы ---

	// Управляемая директория временных файлов
	DataDir string
	// Задержка перед удалением файлов завершённого запроса
	CleanupDelay time.Duration
	// Интервал фонового sweeper'а
	PeriodicCleanupInterval time.Duration
	// Максимальный возраст файла до принудительного удаления
	MaxFileAge time.Duration

	// --- Задачи ---

	// Ёмкость LRU реестра асинхронных задач
	TaskCacheSize int

	// --- Dephealth ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера. Синхронная генерация держит
	// соединение до готовности видео, поэтому по умолчанию 15m.
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DUIX_PORT — порт HTTP-сервера (по умолчанию 8385)
	cfg.Port, err = getEnvInt("DUIX_PORT", 8385)
	if err != nil {
		return nil, fmt.Errorf("DUIX_PORT: %w", err)
	}

	// DUIX_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("DUIX_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("DUIX_LOG_LEVEL: %w", err)
	}

	// DUIX_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DUIX_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DUIX_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Внутренний движок ---

	// DUIX_INTERNAL_URL — базовый URL движка (по умолчанию http://localhost:8383)
	cfg.InternalURL = getEnvDefault("DUIX_INTERNAL_URL", "http://localhost:8383")

	// DUIX_SYNTH_TIMEOUT — дедлайн синхронного синтеза (по умолчанию 10m)
	cfg.SynthTimeout, err = getEnvDuration("DUIX_SYNTH_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DUIX_SYNTH_TIMEOUT: %w", err)
	}

	// DUIX_DOWNLOAD_TIMEOUT — дедлайн загрузки исходного медиа (по умолчанию 120s)
	cfg.DownloadTimeout, err = getEnvDuration("DUIX_DOWNLOAD_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DUIX_DOWNLOAD_TIMEOUT: %w", err)
	}

	// --- Файлы ---

	// DUIX_DATA_DIR — управляемая директория (по умолчанию /code/data)
	cfg.DataDir = getEnvDefault("DUIX_DATA_DIR", "/code/data")

	// DUIX_ENGINE_DATA_DIR — та же директория глазами движка
	// (по умолчанию совпадает с DUIX_DATA_DIR)
	cfg.EngineDataDir = getEnvDefault("DUIX_ENGINE_DATA_DIR", cfg.DataDir)

	// CLEANUP_DELAY — задержка удаления файлов запроса (по умолчанию 60s).
	// Принимает секунды ("60") и формат Go ("60s").
	cfg.CleanupDelay, err = getEnvSeconds("CLEANUP_DELAY", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CLEANUP_DELAY: %w", err)
	}

	// PERIODIC_CLEANUP_INTERVAL — интервал sweeper'а (по умолчанию 300s)
	cfg.PeriodicCleanupInterval, err = getEnvSeconds("PERIODIC_CLEANUP_INTERVAL", 300*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PERIODIC_CLEANUP_INTERVAL: %w", err)
	}

	// MAX_FILE_AGE — максимальный возраст файла (по умолчанию 3600s)
	cfg.MaxFileAge, err = getEnvSeconds("MAX_FILE_AGE", 3600*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MAX_FILE_AGE: %w", err)
	}

	// --- Задачи ---

	// DUIX_TASK_CACHE_SIZE — ёмкость реестра задач (по умолчанию 1024)
	cfg.TaskCacheSize, err = getEnvInt("DUIX_TASK_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DUIX_TASK_CACHE_SIZE: %w", err)
	}
	if cfg.TaskCacheSize < 1 {
		return nil, fmt.Errorf("DUIX_TASK_CACHE_SIZE: значение должно быть > 0")
	}

	// --- Dephealth ---

	// DUIX_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DUIX_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DUIX_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	// DUIX_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("DUIX_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DUIX_HTTP_READ_TIMEOUT: %w", err)
	}

	// DUIX_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 15m)
	cfg.HTTPWriteTimeout, err = getEnvDuration("DUIX_HTTP_WRITE_TIMEOUT", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DUIX_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// DUIX_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("DUIX_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DUIX_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// DUIX_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DUIX_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DUIX_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvSeconds возвращает time.Duration из переменной окружения,
// принимая и целое число секунд ("60"), и формат Go ("60s").
// Числовой формат сохранён для совместимости с прежними deployment'ами.
func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}

	if n, err := strconv.Atoi(val); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("значение должно быть >= 0, получено %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (секунды: 60, формат Go: 60s)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("значение должно быть >= 0, получено %s", d)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
