package cmd

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show the index state of a project",
		Long: `Report whether the project has an index and whether it is ready, stale
(the last pass skipped files or failed), or being built by another process.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, root, err := a.openManager(arg(args))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			status, err := m.Status(cmd.Context(), root)
			if err != nil {
				return err
			}
			info := ui.StatusInfo{
				Status:     *status,
				IndexBytes: dirSize(status.IndexDir),
				Provider:   m.Config().Embeddings.Provider,
			}
			if model, err := m.ModelName(cmd.Context()); err == nil {
				info.ActiveModel = model
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

// dirSize sums the sizes of the regular files under dir. Missing or
// unreadable entries count as zero.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
