package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/zsprackett/tubewatch/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port: got %d want 8080", cfg.Server.Port)
	}
	if cfg.Server.PingInterval != 30*time.Second {
		t.Errorf("ping interval: got %v", cfg.Server.PingInterval)
	}
	if cfg.Watch.Retry != 3*time.Second {
		t.Errorf("retry: got %v", cfg.Watch.Retry)
	}
	if cfg != config.Defaults() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{
		"server": {"port": 9090, "pingInterval": "5s"},
		"notifications": {"enabled": true, "ntfy": "https://ntfy.sh/x"},
		"logLevel": "debug"
	}`), 0644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.PingInterval != 5*time.Second {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if cfg.Server.Workers != 2 {
		t.Errorf("unset keys keep defaults: workers got %d", cfg.Server.Workers)
	}
	if !cfg.Notifications.Enabled || cfg.Notifications.NtfyURL != "https://ntfy.sh/x" {
		t.Errorf("notifications: got %+v", cfg.Notifications)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"server":`), 0644)
	if _, err := config.Load(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"server": {"port": 9090}}`), 0644)
	t.Setenv("TUBEWATCH_SERVER_PORT", "7070")
	t.Setenv("TUBEWATCH_WATCH_URL", "http://media.lan:7070")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port: got %d want 7070", cfg.Server.Port)
	}
	if cfg.Watch.URL != "http://media.lan:7070" {
		t.Errorf("watch url: got %q", cfg.Watch.URL)
	}
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"watch": {"retry": "10s"}}`), 0644)

	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	fs.Duration("retry", time.Second, "")
	fs.Bool("stale-id-capture", false, "")
	if err := fs.Parse([]string{"--stale-id-capture"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadWithFlags(path, fs, map[string]string{
		"watch.retry":          "retry",
		"watch.staleIdCapture": "stale-id-capture",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.Retry != 10*time.Second {
		t.Errorf("unset flag must not override the file: got %v", cfg.Watch.Retry)
	}
	if !cfg.Watch.StaleIDCapture {
		t.Error("expected --stale-id-capture to be applied")
	}
}

func TestLoadWithFlagsUnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("x", pflag.ContinueOnError)
	if _, err := config.LoadWithFlags("", fs, map[string]string{"watch.url": "nope"}); err == nil {
		t.Error("expected an error for a missing flag")
	}
}
