package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/duix-gateway/internal/domain/model"
)

// createStoreFile создаёт и регистрирует файл в Store.
func createStoreFile(t *testing.T, store interface {
	DataDir() string
	Register(string) (*model.ManagedFile, error)
}, name string) string {
	t.Helper()

	path := filepath.Join(store.DataDir(), name)
	if err := os.WriteFile(path, []byte("test data"), 0o640); err != nil {
		t.Fatalf("Ошибка создания тестового файла: %v", err)
	}
	if _, err := store.Register(path); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return path
}

func TestCleanupWorkerRunOnce_DeletesOnlyDue(t *testing.T) {
	store := newTestStore(t)

	due := createStoreFile(t, store, "due.mp4")
	notDue := createStoreFile(t, store, "not_due.mp4")
	active := createStoreFile(t, store, "active.mp4")

	// due — задержка ноль, подлежит удалению сразу
	if err := store.ScheduleCleanup(due, 0); err != nil {
		t.Fatalf("ScheduleCleanup: %v", err)
	}
	// not_due — задержка час, ещё рано
	if err := store.ScheduleCleanup(notDue, time.Hour); err != nil {
		t.Fatalf("ScheduleCleanup: %v", err)
	}
	// active — очистка не планировалась

	worker := NewCleanupWorker(store, time.Second, testLogger())
	deleted := worker.RunOnce()

	if deleted != 1 {
		t.Errorf("Удалено: хотели 1, получили %d", deleted)
	}

	if _, err := os.Stat(due); !os.IsNotExist(err) {
		t.Error("Файл due.mp4 не удалён")
	}
	if _, err := os.Stat(notDue); err != nil {
		t.Error("Файл not_due.mp4 удалён раньше срока")
	}
	if _, err := os.Stat(active); err != nil {
		t.Error("Активный файл active.mp4 удалён")
	}

	state, _ := store.State(due)
	if state != model.StateDeleted {
		t.Errorf("Состояние due.mp4: хотели %s, получили %s", model.StateDeleted, state)
	}
}

func TestCleanupWorkerRunOnce_Empty(t *testing.T) {
	store := newTestStore(t)

	worker := NewCleanupWorker(store, time.Second, testLogger())
	if deleted := worker.RunOnce(); deleted != 0 {
		t.Errorf("Удалено: хотели 0, получили %d", deleted)
	}
}

func TestCleanupWorker_BackgroundDrain(t *testing.T) {
	store := newTestStore(t)

	path := createStoreFile(t, store, "bg.mp4")
	if err := store.ScheduleCleanup(path, 0); err != nil {
		t.Fatalf("ScheduleCleanup: %v", err)
	}

	worker := NewCleanupWorker(store, 10*time.Millisecond, testLogger())
	worker.Start(t.Context())
	defer worker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := store.State(path); state == model.StateDeleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Фоновый worker не удалил due файл за 2 секунды")
}
