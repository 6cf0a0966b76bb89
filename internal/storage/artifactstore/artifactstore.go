// Пакет artifactstore — единственный владелец временных файлов шлюза.
//
// Store объединяет потокобезопасный in-memory реестр ManagedFile
// и физические операции с диском внутри одной управляемой директории
// (DUIX_DATA_DIR). Все компоненты работают с файлами только через Store:
// оркестратор лишь запрашивает регистрацию и планирование очистки,
// удаление выполняют cleanup worker и sweeper.
//
// Реестр защищён одним mutex на экземпляр. Сам syscall удаления
// выполняется вне блокировки, чтобы медленный I/O не задерживал
// регистрации; переход в состояние deleted линеаризуется повторным
// захватом блокировки.
package artifactstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/duix-gateway/internal/domain/model"
)

// Ошибки реестра. Возникают только при нарушении инварианта вызывающим
// кодом, в корректной работе не встречаются.
var (
	// ErrDuplicatePath — путь уже зарегистрирован и ещё не удалён.
	ErrDuplicatePath = errors.New("путь уже зарегистрирован")
	// ErrUnknownFile — путь не зарегистрирован в реестре.
	ErrUnknownFile = errors.New("файл не зарегистрирован")
	// ErrOutsideRoot — путь выходит за пределы управляемой директории.
	ErrOutsideRoot = errors.New("путь вне управляемой директории")
)

// Prometheus-метрики Artifact Store.
var (
	filesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_files_registered_total",
		Help: "Общее количество зарегистрированных временных файлов.",
	})

	filesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f2f_files_deleted_total",
		Help: "Общее количество удалённых временных файлов.",
	})

	trackedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "f2f_tracked_files",
		Help: "Текущее количество отслеживаемых файлов (active + pending-cleanup).",
	})
)

// Store — реестр и дисковые операции временных файлов.
type Store struct {
	mu      sync.Mutex
	files   map[string]*model.ManagedFile // path → ManagedFile
	dataDir string                        // абсолютный корень управляемой директории
	logger  *slog.Logger

	// now — источник времени, подменяется в тестах.
	now func() time.Time
}

// New создаёт Store. Создаёт управляемую директорию, если она не
// существует. Недоступная директория — фатальная ошибка старта.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("абсолютный путь директории данных %s: %w", dataDir, err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}

	return &Store{
		files:   make(map[string]*model.ManagedFile),
		dataDir: abs,
		logger:  logger.With(slog.String("component", "artifact_store")),
		now:     time.Now,
	}, nil
}

// DataDir возвращает абсолютный путь управляемой директории.
func (s *Store) DataDir() string {
	return s.dataDir
}

// NewPath возвращает уникальный путь внутри управляемой директории.
// Формат имени: {unix}_{kind}_{uuid8}{ext}
// Пример: 1756000000_audio_a1b2c3d4.mp3
func (s *Store) NewPath(kind, ext string) string {
	name := fmt.Sprintf("%d_%s_%s%s", s.now().Unix(), kind, uuid.New().String()[:8], ext)
	return filepath.Join(s.dataDir, name)
}

// Register записывает новый файл в реестр в состоянии active.
// Путь обязан лежать внутри управляемой директории (защита от path
// traversal в сгенерированных именах). Повторная регистрация
// неудалённого пути — ErrDuplicatePath.
func (s *Store) Register(path string) (*model.ManagedFile, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.files[abs]; ok && existing.State != model.StateDeleted {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, abs)
	}

	mf := &model.ManagedFile{
		Path:      abs,
		CreatedAt: s.now(),
		State:     model.StateActive,
	}
	s.files[abs] = mf

	filesRegisteredTotal.Inc()
	trackedFiles.Inc()

	s.logger.Debug("Файл зарегистрирован", slog.String("path", abs))

	// Копия — реестр остаётся единственным владельцем записи
	copied := *mf
	return &copied, nil
}

// ScheduleCleanup переводит файл в pending-cleanup и назначает
// cleanupAt = now + delay. Незарегистрированный путь — ErrUnknownFile.
// Уже удалённый файл не реактивируется (переходы монотонны).
func (s *Store) ScheduleCleanup(path string, delay time.Duration) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mf, ok := s.files[abs]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, abs)
	}
	if mf.State == model.StateDeleted {
		// Удаление уже состоялось — планировать нечего
		return nil
	}

	mf.State = model.StatePendingCleanup
	mf.CleanupAt = s.now().Add(delay)

	s.logger.Debug("Очистка запланирована",
		slog.String("path", abs),
		slog.Time("cleanup_at", mf.CleanupAt),
	)
	return nil
}

// DeleteNow удаляет файл с диска и помечает его deleted.
// Идемпотентна: повторное удаление, незарегистрированный или физически
// отсутствующий файл — не ошибка. Syscall удаления выполняется вне
// блокировки реестра.
func (s *Store) DeleteNow(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	mf, tracked := s.files[abs]
	if tracked && mf.State == model.StateDeleted {
		s.mu.Unlock()
		s.logger.Debug("Файл уже удалён", slog.String("path", abs))
		return nil
	}
	s.mu.Unlock()

	// Физическое удаление — вне блокировки, медленный I/O не должен
	// задерживать другие регистрации.
	rmErr := os.Remove(abs)
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("удаление файла %s: %w", abs, rmErr)
	}
	if os.IsNotExist(rmErr) {
		s.logger.Debug("Файл уже отсутствует на диске", slog.String("path", abs))
	}

	// Переход в deleted линеаризуется под блокировкой.
	s.mu.Lock()
	if mf, ok := s.files[abs]; ok && mf.State != model.StateDeleted {
		mf.State = model.StateDeleted
		filesDeletedTotal.Inc()
		trackedFiles.Dec()
	}
	s.mu.Unlock()

	s.logger.Debug("Файл удалён", slog.String("path", abs))
	return nil
}

// DueForCleanup возвращает пути pending-cleanup файлов, чей cleanupAt
// уже наступил. Вызывается cleanup worker'ом; удаление выполняется
// отдельными вызовами DeleteNow.
func (s *Store) DueForCleanup() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []string
	for path, mf := range s.files {
		if mf.State == model.StatePendingCleanup && !mf.CleanupAt.After(now) {
			due = append(due, path)
		}
	}
	return due
}

// SweepExpired удаляет все файлы старше maxAge: и отслеживаемые
// реестром, и физически присутствующие в директории неотслеживаемые
// (осиротевшие при падении процесса до регистрации). Возвращает
// количество удалённых. Файлы моложе maxAge не затрагиваются
// независимо от состояния.
func (s *Store) SweepExpired(maxAge time.Duration) (int, error) {
	now := s.now()
	cutoff := now.Add(-maxAge)

	// Снимок устаревших отслеживаемых файлов под блокировкой
	s.mu.Lock()
	var stale []string
	for path, mf := range s.files {
		if mf.State != model.StateDeleted && mf.CreatedAt.Before(cutoff) {
			stale = append(stale, path)
		}
	}
	// Попутно выбрасываем deleted записи — реестр не растёт бесконечно
	for path, mf := range s.files {
		if mf.State == model.StateDeleted {
			delete(s.files, path)
		}
	}
	tracked := make(map[string]bool, len(s.files))
	for path := range s.files {
		tracked[path] = true
	}
	s.mu.Unlock()

	count := 0
	for _, path := range stale {
		if err := s.DeleteNow(path); err != nil {
			s.logger.Error("Sweep: ошибка удаления файла",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		count++
	}

	// Неотслеживаемые файлы: физический скан директории
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return count, fmt.Errorf("сканирование директории %s: %w", s.dataDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dataDir, entry.Name())
		if tracked[path] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Sweep: ошибка удаления неотслеживаемого файла",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.logger.Info("Sweep: удалён неотслеживаемый файл",
			slog.String("path", path),
			slog.Time("mod_time", info.ModTime()),
		)
		filesDeletedTotal.Inc()
		count++
	}

	return count, nil
}

// State возвращает текущее состояние файла и признак регистрации.
func (s *Store) State(path string) (model.FileState, bool) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mf, ok := s.files[abs]
	if !ok {
		return "", false
	}
	return mf.State, true
}

// Count возвращает количество неудалённых файлов в реестре.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, mf := range s.files {
		if mf.State != model.StateDeleted {
			count++
		}
	}
	return count
}

// CountByState возвращает количество файлов в указанном состоянии.
func (s *Store) CountByState(state model.FileState) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, mf := range s.files {
		if mf.State == state {
			count++
		}
	}
	return count
}

// resolve приводит путь к абсолютному и проверяет, что он лежит внутри
// управляемой директории.
func (s *Store) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("абсолютный путь %s: %w", path, err)
	}

	rel, err := filepath.Rel(s.dataDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}
