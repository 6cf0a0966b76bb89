// Пакет downloader — загрузка исходных медиа в управляемую директорию.
//
// Каждый скачиваемый файл регистрируется в Artifact Store ДО записи
// первых байт: падение процесса посреди загрузки оставляет след,
// который подберёт sweeper. Частично записанные файлы при ошибке
// удаляются сразу через Store.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

// Prometheus-метрики загрузок.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f2f_downloads_total",
		Help: "Общее количество загрузок исходных медиа (по статусу).",
	}, []string{"status"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_download_bytes_total",
		Help: "Общее количество скачанных байт исходных медиа.",
	})
)

// Downloader — загрузчик исходных медиа.
type Downloader struct {
	store      *artifactstore.Store
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт Downloader.
// timeout — дедлайн одной загрузки (DUIX_DOWNLOAD_TIMEOUT).
func New(store *artifactstore.Store, timeout time.Duration, logger *slog.Logger) *Downloader {
	return &Downloader{
		store: store,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.With(slog.String("component", "downloader")),
	}
}

// Fetch скачивает файл по URL в управляемую директорию и возвращает
// локальный путь. kind — "audio" или "video", влияет на расширение
// сгенерированного имени. Путь регистрируется в Store до записи.
func (d *Downloader) Fetch(ctx context.Context, rawURL, kind string) (string, error) {
	localPath := d.localPath(rawURL, kind)

	// Регистрация до создания файла: след для sweeper'а существует
	// раньше первых байт на диске.
	if _, err := d.store.Register(localPath); err != nil {
		return "", fmt.Errorf("регистрация файла загрузки: %w", err)
	}

	d.logger.Info("Начата загрузка",
		slog.String("kind", kind),
		slog.String("url", rawURL),
		slog.String("path", localPath),
	)

	size, err := d.fetchToFile(ctx, rawURL, localPath)
	if err != nil {
		// Частичный файл удаляем сразу, след в реестре закрываем
		if delErr := d.store.DeleteNow(localPath); delErr != nil {
			d.logger.Warn("Ошибка очистки частичного файла",
				slog.String("path", localPath),
				slog.String("error", delErr.Error()),
			)
		}
		downloadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("загрузка %s: %w", rawURL, err)
	}

	downloadsTotal.WithLabelValues("success").Inc()
	downloadBytesTotal.Add(float64(size))

	d.logger.Info("Загрузка завершена",
		slog.String("path", localPath),
		slog.Int64("bytes", size),
	)
	return localPath, nil
}

// fetchToFile выполняет HTTP GET и streaming-запись на диск.
func (d *Downloader) fetchToFile(ctx context.Context, rawURL, localPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("источник вернул статус %d", resp.StatusCode)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("создание файла: %w", err)
	}

	size, err := io.Copy(f, resp.Body)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("запись данных: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("закрытие файла: %w", err)
	}
	return size, nil
}

// localPath выбирает локальный путь для загрузки. Оригинальное имя из
// URL (если оно есть и содержит расширение) сохраняется как суффикс,
// но путь всегда уникален: два запроса с одним URL не контендуют за
// один файл в реестре. filepath.Base отсекает path traversal из URL.
func (d *Downloader) localPath(rawURL, kind string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		name := filepath.Base(path.Base(parsed.Path))
		if name != "." && name != "/" && strings.Contains(name, ".") {
			unique := fmt.Sprintf("%s_%s", uuid.New().String()[:8], name)
			return filepath.Join(d.store.DataDir(), unique)
		}
	}

	ext := ".mp4"
	if kind == "audio" {
		ext = ".mp3"
	}
	return d.store.NewPath(kind, ext)
}
