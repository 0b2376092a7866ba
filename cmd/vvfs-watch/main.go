package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	internal "github.com/ZanzyTHEbar/vvfs-inotify/vvfs"
	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/watcher"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	noRecurse  bool

	rootCmd = &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut + " [path...]",
		Short: "Stream file system changes below the given directories",
		Long: "Watches directories with inotify (fsnotify elsewhere) and prints one line per\n" +
			"create, write, remove and rename. Paths default to watcher.paths from the config.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args)
		},
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a config file.")
	flags.StringVar(&logLevel, "log-level", "", "Log level, overrides log.level.")
	flags.BoolVar(&noRecurse, "no-recursive", false, "Only watch the given directories, not their subdirectories.")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := internal.NewLogger(cfg.Log.Level)

	paths := args
	if len(paths) == 0 {
		paths = cfg.Watcher.Paths
	}
	if len(paths) == 0 {
		return fmt.Errorf("no paths to watch")
	}

	wc := watcher.ConfigFromSettings(cfg.Watcher)
	if noRecurse {
		wc.Recursive = false
	}

	w, err := watcher.NewWatcher(wc, watcher.WithLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Start(ctx, paths); err != nil {
		return err
	}

	return printEvents(ctx, w, logger)
}

func printEvents(ctx context.Context, w watcher.Watcher, logger zerolog.Logger) error {
	out := os.Stdout
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch {
			case event.Type == watcher.EventRename:
				fmt.Fprintf(out, "%s\t%s -> %s\n", event.Type, event.OldPath, event.Path)
			case event.IsDir:
				fmt.Fprintf(out, "%s\t%s/\n", event.Type, event.Path)
			default:
				fmt.Fprintf(out, "%s\t%s\n", event.Type, event.Path)
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			logger.Error().Err(err).Msg("watcher error")
		}
	}
}
