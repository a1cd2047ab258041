package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ikonnect/agency-chat/internal/config"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store = "memory"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = "http://127.0.0.1:0/v1"
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNewWiresHandler(t *testing.T) {
	app, err := New(testConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "mongo"
	if _, err := New(cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	app, err := New(testConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
