package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the registry for out-of-process writes",
	Long: `Run as a long-lived observer: hold the registry open, watch the index
database for changes made by other processes, and drop cached resolutions
when they land. Each detected change is printed as a JSON line.

Example:
  skillstore watch`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.Background()) }()

	w, err := watcher.New(watcher.Config{
		IndexPath:   s.IndexPath(),
		DebounceDur: cfg.Watcher.Debounce,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "watching %s (Ctrl+C to stop)\n", s.IndexPath())

	for {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "\nreceived %s, stopping\n", sig)
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			s.InvalidateCache(cmd.Context())
			log.Info(log.CatWatcher, "index changed by another process, cache dropped")
			_ = formatter().Format(map[string]string{"event": "index_changed"})
		}
	}
}
