package downloader

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/duix-gateway/internal/domain/model"
	"github.com/bigkaa/duix-gateway/internal/storage/artifactstore"
)

func newTestEnv(t *testing.T) (*artifactstore.Store, *Downloader) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := artifactstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Ошибка создания Store: %v", err)
	}
	return store, New(store, 5*time.Second, logger)
}

func TestFetch_KeepsOriginalFilename(t *testing.T) {
	store, dl := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	path, err := dl.Fetch(context.Background(), srv.URL+"/media/voice.mp3", "audio")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Оригинальное имя сохраняется как суффикс уникального имени
	if !strings.HasSuffix(filepath.Base(path), "_voice.mp3") {
		t.Errorf("Имя файла: хотели суффикс _voice.mp3, получили %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Чтение результата: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("Содержимое: хотели audio-bytes, получили %q", data)
	}

	state, ok := store.State(path)
	if !ok || state != model.StateActive {
		t.Errorf("Состояние: хотели %s, получили %s", model.StateActive, state)
	}
}

func TestFetch_SameURL_DistinctPaths(t *testing.T) {
	store, dl := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	// Два запроса ссылаются на один и тот же URL — оба должны
	// получить собственный файл, без контенции за путь в реестре
	first, err := dl.Fetch(context.Background(), srv.URL+"/media/voice.mp3", "audio")
	if err != nil {
		t.Fatalf("Первый Fetch: %v", err)
	}
	second, err := dl.Fetch(context.Background(), srv.URL+"/media/voice.mp3", "audio")
	if err != nil {
		t.Fatalf("Повторный Fetch того же URL: %v", err)
	}

	if first == second {
		t.Fatalf("Пути совпали: %s", first)
	}
	for _, p := range []string{first, second} {
		if state, ok := store.State(p); !ok || state != model.StateActive {
			t.Errorf("Состояние %s: хотели %s, получили %s", p, model.StateActive, state)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Файл %s отсутствует на диске: %v", p, err)
		}
	}
	if store.Count() != 2 {
		t.Errorf("Записей в реестре: хотели 2, получили %d", store.Count())
	}
}

func TestFetch_GeneratesNameWithoutExtension(t *testing.T) {
	store, dl := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	path, err := dl.Fetch(context.Background(), srv.URL+"/stream", "video")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if filepath.Ext(path) != ".mp4" {
		t.Errorf("Расширение: хотели .mp4, получили %s", filepath.Ext(path))
	}
	if filepath.Dir(path) != store.DataDir() {
		t.Errorf("Файл %s вне управляемой директории", path)
	}
}

func TestFetch_SourceError_NoPartialFile(t *testing.T) {
	store, dl := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "нет такого файла", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := dl.Fetch(context.Background(), srv.URL+"/missing.mp3", "audio")
	if err == nil {
		t.Fatal("Fetch с 404 источника должен вернуть ошибку")
	}

	// Частичных файлов не осталось, запись в реестре закрыта
	entries, readErr := os.ReadDir(store.DataDir())
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("В директории остались файлы: %v", entries)
	}
	if store.Count() != 0 {
		t.Errorf("В реестре осталось %d записей, ожидалось 0", store.Count())
	}
}

func TestFetch_Unreachable(t *testing.T) {
	_, dl := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if _, err := dl.Fetch(context.Background(), srv.URL+"/a.mp3", "audio"); err == nil {
		t.Error("Fetch с недоступным источником должен вернуть ошибку")
	}
}
