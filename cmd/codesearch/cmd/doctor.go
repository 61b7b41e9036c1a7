package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/preflight"
	"github.com/Aman-CERP/codesearch/internal/project"
)

type doctorResult struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check that this machine can index and search",
		Long: `Runs the preflight checks: configuration, data directory permissions and
free space, the open file limit, and whether the configured embedder answers.
Exits non-zero when a required check fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := project.ResolveRoot(arg(args))
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig(root)
			if err != nil {
				return err
			}

			results := preflight.New(cfg).RunAll(cmd.Context())
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), doctorResult{
					Status: preflight.SummaryStatus(results),
					Checks: results,
				}); err != nil {
					return err
				}
			} else {
				preflight.PrintResults(cmd.OutOrStdout(), results, verbose)
			}
			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details of passing checks")
	return cmd
}
