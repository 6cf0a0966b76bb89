package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// clearAllEnvVars очищает все переменные окружения шлюза для чистого
// теста и возвращает функцию восстановления.
func clearAllEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"DUIX_PORT", "DUIX_LOG_LEVEL", "DUIX_LOG_FORMAT",
		"DUIX_INTERNAL_URL", "DUIX_SYNTH_TIMEOUT", "DUIX_DOWNLOAD_TIMEOUT",
		"DUIX_DATA_DIR", "DUIX_ENGINE_DATA_DIR",
		"CLEANUP_DELAY", "PERIODIC_CLEANUP_INTERVAL", "MAX_FILE_AGE",
		"DUIX_TASK_CACHE_SIZE", "DUIX_DEPHEALTH_CHECK_INTERVAL",
		"DUIX_HTTP_READ_TIMEOUT", "DUIX_HTTP_WRITE_TIMEOUT", "DUIX_HTTP_IDLE_TIMEOUT",
		"DUIX_SHUTDOWN_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8385 {
		t.Errorf("Port: ожидалось 8385, получено %d", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось info, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось json, получено %q", cfg.LogFormat)
	}
	if cfg.InternalURL != "http://localhost:8383" {
		t.Errorf("InternalURL: ожидалось http://localhost:8383, получено %q", cfg.InternalURL)
	}
	if cfg.DataDir != "/code/data" {
		t.Errorf("DataDir: ожидалось /code/data, получено %q", cfg.DataDir)
	}
	if cfg.EngineDataDir != "/code/data" {
		t.Errorf("EngineDataDir: ожидалось /code/data, получено %q", cfg.EngineDataDir)
	}
	if cfg.CleanupDelay != 60*time.Second {
		t.Errorf("CleanupDelay: ожидалось 60s, получено %v", cfg.CleanupDelay)
	}
	if cfg.PeriodicCleanupInterval != 300*time.Second {
		t.Errorf("PeriodicCleanupInterval: ожидалось 300s, получено %v", cfg.PeriodicCleanupInterval)
	}
	if cfg.MaxFileAge != time.Hour {
		t.Errorf("MaxFileAge: ожидалось 1h, получено %v", cfg.MaxFileAge)
	}
	if cfg.SynthTimeout != 10*time.Minute {
		t.Errorf("SynthTimeout: ожидалось 10m, получено %v", cfg.SynthTimeout)
	}
	if cfg.TaskCacheSize != 1024 {
		t.Errorf("TaskCacheSize: ожидалось 1024, получено %d", cfg.TaskCacheSize)
	}
	if cfg.HTTPWriteTimeout != 15*time.Minute {
		t.Errorf("HTTPWriteTimeout: ожидалось 15m, получено %v", cfg.HTTPWriteTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_SecondsAndDurationFormats(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	// Числовой формат (секунды) — совместимость с прежними deployment'ами
	os.Setenv("CLEANUP_DELAY", "90")
	os.Setenv("PERIODIC_CLEANUP_INTERVAL", "600")
	// Формат Go
	os.Setenv("MAX_FILE_AGE", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.CleanupDelay != 90*time.Second {
		t.Errorf("CleanupDelay: ожидалось 90s, получено %v", cfg.CleanupDelay)
	}
	if cfg.PeriodicCleanupInterval != 600*time.Second {
		t.Errorf("PeriodicCleanupInterval: ожидалось 600s, получено %v", cfg.PeriodicCleanupInterval)
	}
	if cfg.MaxFileAge != 2*time.Hour {
		t.Errorf("MaxFileAge: ожидалось 2h, получено %v", cfg.MaxFileAge)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"некорректный порт", "DUIX_PORT", "not-a-number"},
		{"некорректный уровень логирования", "DUIX_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "DUIX_LOG_FORMAT", "xml"},
		{"некорректная длительность", "CLEANUP_DELAY", "soon"},
		{"отрицательные секунды", "MAX_FILE_AGE", "-60"},
		{"нулевая ёмкость кэша", "DUIX_TASK_CACHE_SIZE", "0"},
		{"некорректный таймаут", "DUIX_SYNTH_TIMEOUT", "10 minutes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			os.Setenv(tc.key, tc.value)

			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: ожидалась ошибка", tc.key, tc.value)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
	}

	for input, want := range cases {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Errorf("parseLogLevel(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("parseLogLevel(%q): ожидалось %v, получено %v", input, want, got)
		}
	}

	if _, err := parseLogLevel("trace"); err == nil {
		t.Error("parseLogLevel(trace): ожидалась ошибка")
	}
}
