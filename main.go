package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zsprackett/tubewatch/internal/config"
	"github.com/zsprackett/tubewatch/internal/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubewatch",
		Short:         "Queue YouTube audio downloads and watch them progress live",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", config.DefaultPath(), "path to the JSON config file")
	root.AddCommand(newServeCommand(), newWatchCommand())
	return root
}

// loadConfig reads the config file named by --config and layers the
// command's flags on top. A broken file falls back to the defaults.
func loadConfig(cmd *cobra.Command, bindings map[string]string) config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWithFlags(path, cmd.Flags(), bindings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	return cfg
}

func openDB(path string) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
