package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsprackett/tubewatch/internal/apiclient"
	"github.com/zsprackett/tubewatch/internal/applog"
	"github.com/zsprackett/tubewatch/internal/binder"
	"github.com/zsprackett/tubewatch/internal/config"
	"github.com/zsprackett/tubewatch/internal/page"
	"github.com/zsprackett/tubewatch/internal/sse"
	"github.com/zsprackett/tubewatch/internal/ui"
)

var watchBindings = map[string]string{
	"watch.retry":          "retry",
	"watch.insecure":       "insecure",
	"watch.staleIdCapture": "stale-id-capture",
	"watch.logErrors":      "log-errors",
}

type watchOptions struct {
	html  string
	plain bool
}

func newWatchCommand() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch [server-url]",
		Short: "Show the server's list and keep it current from the event stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, watchBindings)
			if len(args) == 1 {
				cfg.Watch.URL = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cfg, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.html, "html", "", "also keep the list page mirrored in this file")
	f.BoolVar(&opts.plain, "plain", false, "print one line per change instead of the terminal UI")
	f.Duration("retry", 0, "initial reconnection delay")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.Bool("stale-id-capture", false, "apply status updates to the most recently created item")
	f.Bool("log-errors", false, "log event stream connection errors")
	return cmd
}

// watchLogConfig keeps log lines off the terminal while tview owns it.
func watchLogConfig(cfg config.Config, tui bool) applog.InitConfig {
	lc := applog.InitConfig{
		LogDir:    cfg.LogDir,
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
		Fallback:  os.Stderr,
	}
	if tui {
		lc.Fallback = io.Discard
	}
	return lc
}

func watch(ctx context.Context, cfg config.Config, opts watchOptions) error {
	tui := !opts.plain && isTTY()
	lc := watchLogConfig(cfg, tui)
	logger, logCloser, err := applog.Init(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		logger = slog.New(slog.NewTextHandler(lc.Fallback, nil))
	} else {
		defer logCloser.Close()
	}

	base := strings.TrimRight(cfg.Watch.URL, "/")
	hc := &http.Client{}
	if cfg.Watch.Insecure {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	stream := sse.New(base+"/events",
		sse.WithHTTPClient(hc),
		sse.WithRetry(cfg.Watch.Retry),
		sse.WithLogger(logger),
	)
	var bopts []binder.Option
	if cfg.Watch.StaleIDCapture {
		bopts = append(bopts, binder.WithStaleIDCapture())
	}
	if cfg.Watch.LogErrors {
		bopts = append(bopts, binder.WithErrorLogging())
	}

	var mirror *page.Mirror
	if opts.html != "" {
		doc, err := page.Fetch(ctx, hc, base)
		if err != nil {
			return fmt.Errorf("fetch list page: %w", err)
		}
		mirror = page.NewMirror(doc, opts.html)
		if err := mirror.Sync(); err != nil {
			return err
		}
	}
	withMirror := func(s binder.Surface) binder.Surface {
		if mirror == nil {
			return s
		}
		return binder.Multi{s, mirror}
	}

	api := apiclient.New(base, hc)

	if !tui {
		out := ui.NewPlain(os.Stdout)
		if existing, err := api.List(ctx); err != nil {
			logger.Warn("watch: list items", "err", err)
		} else {
			for _, it := range existing {
				out.Know(it.AudioID)
			}
		}
		stream.OnOpen(func() { out.Notice("connected to " + stream.URL()) })
		stream.OnError(func(err error) { out.Notice("disconnected: " + err.Error()) })
		return binder.New(withMirror(out), logger, bopts...).Bind(ctx, stream)
	}

	app := ui.NewApp(api, logger)
	list := app.List()
	list.SetConnState(ui.StateConnecting)
	stream.OnOpen(func() { list.SetConnState(ui.StateConnected) })
	stream.OnError(func(error) { list.SetConnState(ui.StateReconnecting) })

	b := binder.New(withMirror(list), logger, bopts...)
	return app.Run(ctx, func(ctx context.Context) error {
		return b.Bind(ctx, stream)
	})
}
