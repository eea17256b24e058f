package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsprackett/tubewatch/internal/applog"
	"github.com/zsprackett/tubewatch/internal/config"
	"github.com/zsprackett/tubewatch/internal/items"
	"github.com/zsprackett/tubewatch/internal/notify"
	"github.com/zsprackett/tubewatch/internal/webserver"
	"github.com/zsprackett/tubewatch/internal/worker"
)

var serveBindings = map[string]string{
	"server.host":        "host",
	"server.port":        "port",
	"server.workers":     "workers",
	"server.tls.enabled": "tls",
	"server.externalUrl": "external-url",
	"audioPath":          "audio-dir",
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download server and its live event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, serveBindings)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.String("host", "", "listen address")
	f.Int("port", 0, "listen port")
	f.Int("workers", 0, "concurrent downloads")
	f.Bool("tls", false, "serve HTTPS with a self-signed certificate")
	f.String("audio-dir", "", "where downloaded audio is stored")
	f.String("external-url", "", "public base URL used in podcast feed links")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := applog.Init(applog.InitConfig{
		LogDir:    cfg.LogDir,
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		logger = slog.Default()
	} else {
		defer logCloser.Close()
	}

	store, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	hub, err := webserver.NewHub(nil)
	if err != nil {
		return err
	}
	mgr := items.NewManager(store, cfg.AudioPath, hub, logger)
	notifier := notify.New(notify.Config{
		Enabled: cfg.Notifications.Enabled,
		Webhook: cfg.Notifications.Webhook,
		NtfyURL: cfg.Notifications.NtfyURL,
	}, logger)
	pool := worker.New(mgr, worker.YTDLP{Binary: cfg.Server.YTDLP}, notifier, worker.Config{
		Workers:   cfg.Server.Workers,
		QueueSize: cfg.Server.QueueSize,
	}, logger)

	n, err := pool.Resume()
	if err != nil {
		logger.Warn("serve: resume unfinished items", "err", err, "queued", n)
	} else if n > 0 {
		logger.Info("serve: resumed unfinished items", "count", n)
	}

	srv := webserver.New(webserver.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		PingInterval: cfg.Server.PingInterval,
		TLS:          cfg.Server.TLS.Enabled,
		CertDir:      cfg.Server.TLS.CertDir,
		ExternalURL:  cfg.Server.ExternalURL,
		FeedTitle:    cfg.Server.FeedTitle,
		Version:      version,
	}, mgr, pool, hub, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}
