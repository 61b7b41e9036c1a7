package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/internal/ui"
)

// taskPollInterval is how often --background prints task progress.
const taskPollInterval = 500 * time.Millisecond

type indexOptions struct {
	force      bool
	background bool
	noTUI      bool
	json       bool
}

// indexResult is the --json output of index.
type indexResult struct {
	Root    string         `json:"root"`
	TaskID  string         `json:"task_id,omitempty"`
	Summary *index.Summary `json:"summary"`
}

func newIndexCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or update the search index of a project",
		Long: `Scan the project, re-chunk and re-embed files whose content changed since the
last pass, and remove files that were deleted. Unchanged files cost one hash.

Use --force after changing the embedding model to rebuild from scratch.`,
		Example: `  codesearch index
  codesearch index ~/src/app --force
  codesearch index --no-tui --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, a, arg(args), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Discard the existing index and rebuild")
	cmd.Flags().BoolVar(&opts.background, "background", false, "Run as a cancellable task and poll its progress")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Print plain progress lines instead of the interactive view")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the summary as JSON")
	return cmd
}

func runIndex(cmd *cobra.Command, a *app, path string, opts indexOptions) error {
	m, root, err := a.openManager(path)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	if opts.background {
		return runIndexTask(ctx, out, m, root, opts)
	}
	if opts.json {
		summary, err := m.Index(ctx, root, opts.force, nil)
		if err != nil {
			return err
		}
		return writeJSON(out, indexResult{Root: root, Summary: summary})
	}

	r := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(root),
		ui.WithInterrupt(cancel),
	))
	if err := r.Start(ctx); err != nil {
		return err
	}
	summary, err := m.Index(ctx, root, opts.force, r.Update)
	if err != nil {
		r.Fail(err)
		_ = r.Stop()
		return err
	}
	r.Complete(summary)
	return r.Stop()
}

// runIndexTask runs the pass as a background task, printing a progress line
// whenever the snapshot changes. An interrupt cancels the task at the next
// file boundary.
func runIndexTask(ctx context.Context, out io.Writer, m *project.Manager, root string, opts indexOptions) error {
	task, err := m.StartIndex(ctx, root, opts.force)
	if err != nil {
		return err
	}
	if !opts.json {
		_, _ = fmt.Fprintf(out, "Started task %s for %s\n", task.ID(), root)
	}

	ticker := time.NewTicker(taskPollInterval)
	defer ticker.Stop()

	last := ""
	for running := true; running; {
		select {
		case <-task.Done():
			running = false
		case <-ctx.Done():
			task.Cancel()
			running = false
		case <-ticker.C:
			if opts.json {
				continue
			}
			p := task.Progress()
			line := fmt.Sprintf("[%s] %.0f%% %d/%d, chunks embedded %d/%d, files stored %d",
				p.Stage, p.ProgressPct, p.Current, p.Total, p.ChunksEmbedded, p.ChunksToEmbed, p.FilesStored)
			if line != last {
				_, _ = fmt.Fprintln(out, line)
				last = line
			}
		}
	}

	summary, err := task.Wait()
	if err != nil {
		return err
	}
	if opts.json {
		return writeJSON(out, indexResult{Root: root, TaskID: task.ID(), Summary: summary})
	}
	r := ui.NewPlainRenderer(ui.NewConfig(out))
	r.Complete(summary)
	return nil
}
