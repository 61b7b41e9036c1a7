// Package cmd provides the CLI commands of codesearch.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codesearch/internal/config"
	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/logging"
	"github.com/Aman-CERP/codesearch/internal/profiling"
	"github.com/Aman-CERP/codesearch/internal/project"
	"github.com/Aman-CERP/codesearch/pkg/version"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	debug      bool
	configPath string
	profile    profiling.Options
}

// app carries per-invocation state from the persistent hooks to commands.
type app struct {
	flags         globalFlags
	stopLogging   func()
	stopProfiling func() error
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "codesearch",
		Short: "Incremental code indexing and semantic search",
		Long: `codesearch indexes a project's source files into embedding vectors and
answers natural-language queries with the most relevant code.

Only files whose content changed since the last pass are re-processed, and
embeddings are cached by content so unchanged chunks are never re-embedded.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.start(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.stop()
		},
	}
	cmd.SetVersionTemplate("codesearch version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.BoolVar(&a.flags.debug, "debug", false, "Enable debug logging to ~/.codesearch/logs/")
	pf.StringVar(&a.flags.configPath, "config", "", "Use this configuration file instead of the layered defaults")
	pf.StringVar(&a.flags.profile.CPU, "profile-cpu", "", "Write a CPU profile to file")
	pf.StringVar(&a.flags.profile.Mem, "profile-mem", "", "Write a heap profile to file on exit")
	pf.StringVar(&a.flags.profile.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// start configures logging and profiling. Logs always go to the log file
// only: stdout carries results, and for the stdio server, the protocol.
func (a *app) start(cmd *cobra.Command) error {
	level := "info"
	if a.flags.debug {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.StdioSafeConfig(level))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.stopLogging = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))

	stop, err := profiling.Start(a.flags.profile)
	if err != nil {
		return err
	}
	a.stopProfiling = stop
	return nil
}

func (a *app) stop() error {
	var err error
	if a.stopProfiling != nil {
		err = a.stopProfiling()
		a.stopProfiling = nil
	}
	if a.stopLogging != nil {
		a.stopLogging()
		a.stopLogging = nil
	}
	return err
}

// loadConfig loads --config when given, otherwise the layered configuration
// for the project at root.
func (a *app) loadConfig(root string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.flags.configPath != "" {
		cfg, err = config.LoadFile(a.flags.configPath)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, cserrors.ConfigError(err.Error(), err)
	}
	return cfg, nil
}

// openManager resolves path to a project root and creates a Manager for it.
func (a *app) openManager(path string) (*project.Manager, string, error) {
	root, err := project.ResolveRoot(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := a.loadConfig(root)
	if err != nil {
		return nil, "", err
	}
	m, err := project.NewManager(cfg)
	if err != nil {
		return nil, "", err
	}
	return m, root, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	var csErr *cserrors.CodeSearchError
	if errors.As(err, &csErr) {
		_, _ = fmt.Fprint(os.Stderr, cserrors.FormatForCLI(err))
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return 1
}

// exitError ends the process with code after the command already reported
// the problem.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func arg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
