package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TUBEWATCH"

type NotificationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Webhook string `mapstructure:"webhook"`
	NtfyURL string `mapstructure:"ntfy"`
}

type TLSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	CertDir string `mapstructure:"certDir"` // defaults to ~/.tubewatch/certs
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queueSize"`
	YTDLP        string        `mapstructure:"ytdlp"`
	TLS          TLSConfig     `mapstructure:"tls"`
	// ExternalURL is how podcast clients reach the server, e.g.
	// https://pods.example.com. Empty uses the request's host.
	ExternalURL string `mapstructure:"externalUrl"`
	FeedTitle   string `mapstructure:"feedTitle"`
}

type WatchConfig struct {
	URL            string        `mapstructure:"url"`
	Retry          time.Duration `mapstructure:"retry"`
	Insecure       bool          `mapstructure:"insecure"`
	StaleIDCapture bool          `mapstructure:"staleIdCapture"`
	LogErrors      bool          `mapstructure:"logErrors"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Watch         WatchConfig         `mapstructure:"watch"`
	AudioPath     string              `mapstructure:"audioPath"`
	DBPath        string              `mapstructure:"dbPath"`
	LogDir        string              `mapstructure:"logDir"`
	LogLevel      string              `mapstructure:"logLevel"`
	LogFormat     string              `mapstructure:"logFormat"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tubewatch")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			PingInterval: 30 * time.Second,
			Workers:      2,
			QueueSize:    32,
			YTDLP:        "yt-dlp",
			TLS:          TLSConfig{CertDir: filepath.Join(Dir(), "certs")},
			FeedTitle:    "tubewatch",
		},
		Watch: WatchConfig{
			URL:   "http://localhost:8080",
			Retry: 3 * time.Second,
		},
		AudioPath: filepath.Join(Dir(), "audio"),
		DBPath:    filepath.Join(Dir(), "state.db"),
		LogDir:    filepath.Join(Dir(), "logs"),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// setDefaults mirrors Defaults into v so every key is known to viper,
// which env lookups and flag bindings rely on.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.pingInterval", d.Server.PingInterval)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.queueSize", d.Server.QueueSize)
	v.SetDefault("server.ytdlp", d.Server.YTDLP)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.certDir", d.Server.TLS.CertDir)
	v.SetDefault("server.externalUrl", d.Server.ExternalURL)
	v.SetDefault("server.feedTitle", d.Server.FeedTitle)
	v.SetDefault("watch.url", d.Watch.URL)
	v.SetDefault("watch.retry", d.Watch.Retry)
	v.SetDefault("watch.insecure", d.Watch.Insecure)
	v.SetDefault("watch.staleIdCapture", d.Watch.StaleIDCapture)
	v.SetDefault("watch.logErrors", d.Watch.LogErrors)
	v.SetDefault("audioPath", d.AudioPath)
	v.SetDefault("dbPath", d.DBPath)
	v.SetDefault("logDir", d.LogDir)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFormat", d.LogFormat)
	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.webhook", d.Notifications.Webhook)
	v.SetDefault("notifications.ntfy", d.Notifications.NtfyURL)
}

// Load reads the JSON file at path over the defaults. A missing file is
// not an error. TUBEWATCH_* environment variables override both, with
// nested keys joined by underscores (TUBEWATCH_SERVER_PORT).
func Load(path string) (Config, error) {
	return LoadWithFlags(path, nil, nil)
}

// LoadWithFlags is Load with command-line flags layered on top. bindings
// maps config keys to flag names in fs. Only flags the user set win over
// the file and environment.
func LoadWithFlags(path string, fs *pflag.FlagSet, bindings map[string]string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			return Config{}, fmt.Errorf("bind %s: no flag %q", key, name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
