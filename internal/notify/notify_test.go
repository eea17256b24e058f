package notify_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNtfyNotification(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{
		Enabled: true,
		NtfyURL: srv.URL + "/test-topic",
	}, discardLogger())

	n.Notify(db.Item{
		ID:     "1",
		Title:  "swift-fox",
		URL:    "https://youtu.be/x",
		Status: db.StatusAvailable,
	})

	if received == nil {
		t.Fatal("no POST received")
	}
	if received["title"] != "swift-fox is available" {
		t.Errorf("unexpected title: %v", received["title"])
	}
}

func TestWebhookCarriesError(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{Enabled: true, Webhook: srv.URL}, discardLogger())
	n.Notify(db.Item{ID: "7", Title: "t", Status: db.StatusError, Error: "boom"})

	if received["audioID"] != "7" || received["status"] != "Error" || received["error"] != "boom" {
		t.Errorf("unexpected payload: %v", received)
	}
}

func TestNotify_WebhookErrorLogged(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Invalid URL forces a POST error.
	n := notify.New(notify.Config{Enabled: true, Webhook: "http://127.0.0.1:1"}, logger)
	n.Notify(db.Item{Title: "test", Status: db.StatusAvailable})

	if !strings.Contains(buf.String(), "webhook") {
		t.Errorf("expected warn log mentioning webhook, got: %q", buf.String())
	}
}

func TestNotify_IgnoresNonTerminalStatus(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := notify.New(notify.Config{Enabled: true, Webhook: srv.URL}, discardLogger())
	n.Notify(db.Item{Title: "t", Status: db.StatusDownloading})
	if called {
		t.Error("expected no POST for a non-terminal status")
	}
}

func TestNotify_DisabledNoOp(t *testing.T) {
	n := notify.New(notify.Config{Enabled: false}, discardLogger())
	// Must not panic.
	n.Notify(db.Item{Title: "test", Status: db.StatusAvailable})

	var nilNotifier *notify.Notifier
	nilNotifier.Notify(db.Item{Status: db.StatusAvailable})
}
