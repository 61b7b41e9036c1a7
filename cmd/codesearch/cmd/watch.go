package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codesearch/internal/output"
	"github.com/Aman-CERP/codesearch/internal/scanner"
	"github.com/Aman-CERP/codesearch/internal/ui"
	"github.com/Aman-CERP/codesearch/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index current while files change",
		Long: `Index the project once, then watch it and run an incremental pass after
each burst of changes settles. Ignored directories are not watched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, root, err := a.openManager(arg(args))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := output.New(cmd.OutOrStdout())
			plain := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout()))
			reindex := func(ctx context.Context) error {
				summary, err := m.Index(ctx, root, false, nil)
				if err != nil {
					if ctx.Err() == nil {
						out.Error(err.Error())
					}
					return err
				}
				if summary.FilesChanged > 0 || summary.FilesRemoved > 0 || summary.Stale() {
					plain.Complete(summary)
				}
				return nil
			}

			out.Statusf(">", "Indexing %s", root)
			if err := reindex(ctx); err != nil {
				return err
			}

			sc, err := scanner.New(scanner.OptionsFromConfig(m.Config()))
			if err != nil {
				return err
			}
			w, err := watcher.New(sc, watcher.Options{Debounce: m.Config().Watch.Debounce})
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			out.Statusf(">", "Watching %s (ctrl+c to stop)", root)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.Start(gctx, root) })
			g.Go(func() error { return watcher.Reindex(gctx, w.Events(), reindex) })
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case err, ok := <-w.Errors():
						if !ok {
							return nil
						}
						slog.Warn("watch_error", slog.String("error", err.Error()))
					}
				}
			})

			err = g.Wait()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			out.Status(">", "Stopped")
			return nil
		},
	}
	return cmd
}
