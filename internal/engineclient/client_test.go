package engineclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSynthesize_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/easy/synthesize" {
			t.Errorf("Путь: хотели /easy/synthesize, получили %s", r.URL.Path)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Декодирование запроса: %v", err)
		}
		if req.AudioURL != "https://x/a.wav" || req.VideoURL != "https://x/v.mp4" {
			t.Errorf("Неожиданные URL в запросе: %+v", req)
		}
		w.Write([]byte("MP4DATA"))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	data, err := client.Synthesize(context.Background(), "https://x/a.wav", "https://x/v.mp4")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "MP4DATA" {
		t.Errorf("Данные: хотели MP4DATA, получили %q", data)
	}
}

func TestSynthesize_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // сервер остановлен — соединение откажет

	client := New(srv.URL, 5*time.Second, testLogger())
	_, err := client.Synthesize(context.Background(), "https://x/a.wav", "https://x/v.mp4")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureUnreachable {
		t.Errorf("Kind: хотели %s, получили %s", FailureUnreachable, f.Kind)
	}
	if !Retryable(err) {
		t.Error("Unreachable должна быть retryable")
	}
}

func TestSynthesize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("MP4DATA"))
	}))
	defer srv.Close()

	client := New(srv.URL, 20*time.Millisecond, testLogger())
	_, err := client.Synthesize(context.Background(), "https://x/a.wav", "https://x/v.mp4")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureTimeout {
		t.Errorf("Kind: хотели %s, получили %s", FailureTimeout, f.Kind)
	}
	if !Retryable(err) {
		t.Error("Timeout должна быть retryable")
	}
}

func TestSynthesize_CallerCanceled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("MP4DATA"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel() // клиент отключился посреди синтеза
	}()

	client := New(srv.URL, 5*time.Second, testLogger())
	_, err := client.Synthesize(ctx, "https://x/a.wav", "https://x/v.mp4")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureCanceled {
		t.Errorf("Kind: хотели %s, получили %s", FailureCanceled, f.Kind)
	}
	if Retryable(err) {
		t.Error("Отмена вызывающей стороной не должна быть retryable")
	}
}

func TestSynthesize_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "модель не загружена", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	_, err := client.Synthesize(context.Background(), "https://x/a.wav", "https://x/v.mp4")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureUpstream {
		t.Errorf("Kind: хотели %s, получили %s", FailureUpstream, f.Kind)
	}
	if Retryable(err) {
		t.Error("UpstreamError не должна быть retryable")
	}
}

func TestSynthesize_EmptyBody_InvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	_, err := client.Synthesize(context.Background(), "https://x/a.wav", "https://x/v.mp4")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureInvalidResponse {
		t.Errorf("Kind: хотели %s, получили %s", FailureInvalidResponse, f.Kind)
	}
}

func TestSubmit_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/easy/submit" {
			t.Errorf("Путь: хотели /easy/submit, получили %s", r.URL.Path)
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Декодирование запроса: %v", err)
		}
		if req.Code == "" || req.PN != 1 {
			t.Errorf("Неожиданное тело submit: %+v", req)
		}
		json.NewEncoder(w).Encode(submitResponse{Code: 10000})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	if err := client.Submit(context.Background(), "/code/data/a.mp3", "/code/data/v.mp4", "task-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{Code: 10004, Msg: "очередь переполнена"})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	err := client.Submit(context.Background(), "/code/data/a.mp3", "/code/data/v.mp4", "task-1")

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("Хотели Failure, получили %v", err)
	}
	if f.Kind != FailureUpstream {
		t.Errorf("Kind: хотели %s, получили %s", FailureUpstream, f.Kind)
	}
}

func TestQuery_ProxiesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("code"); got != "task-1" {
			t.Errorf("Параметр code: хотели task-1, получили %s", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 10000,
			"data": map[string]any{"status": 2, "result": "task-1.mp4"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, testLogger())
	qr, err := client.Query(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if qr.Code != 10000 {
		t.Errorf("Code: хотели 10000, получили %d", qr.Code)
	}
	if qr.Data["result"] != "task-1.mp4" {
		t.Errorf("Data.result: хотели task-1.mp4, получили %v", qr.Data["result"])
	}
}
