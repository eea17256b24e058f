package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/zsprackett/tubewatch/internal/db"
)

// Config holds notification settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

// Notifier fires system notifications and optional webhook POSTs.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a Notifier with the given config.
func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Notify reports an item that reached Available or Error. Other statuses
// are ignored.
func (n *Notifier) Notify(it db.Item) {
	if n == nil || !n.cfg.Enabled || !it.Status.Terminal() {
		return
	}

	n.sendSystemNotification(message(it))
	if n.cfg.Webhook != "" {
		n.sendWebhook(it)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(it)
	}
}

func message(it db.Item) string {
	if it.Status == db.StatusError {
		return fmt.Sprintf("%s failed: %s", it.Title, it.Error)
	}
	return fmt.Sprintf("%s is available", it.Title)
}

func (n *Notifier) sendSystemNotification(msg string) {
	if runtime.GOOS != "darwin" {
		return
	}
	script := fmt.Sprintf(`display notification %q with title "tubewatch"`, msg)
	exec.Command("osascript", "-e", script).Run()
}

type webhookPayload struct {
	AudioID   string `json:"audioID"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (n *Notifier) sendWebhook(it db.Item) {
	payload := webhookPayload{
		AudioID:   it.ID,
		Title:     it.Title,
		URL:       it.URL,
		Status:    string(it.Status),
		Error:     it.Error,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	n.post("webhook", n.cfg.Webhook, payload)
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(it db.Item) {
	payload := ntfyPayload{
		Title:    message(it),
		Message:  it.URL,
		Priority: 3,
		Tags:     []string{"headphones"},
	}
	if it.Status == db.StatusError {
		payload.Priority = 4
		payload.Tags = []string{"warning"}
	}
	n.post("ntfy", n.cfg.NtfyURL, payload)
}

func (n *Notifier) post(kind, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: "+kind+" failed", "url", url, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: "+kind+" rejected", "url", url, "status", resp.StatusCode)
	}
}
