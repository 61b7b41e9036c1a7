package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/codesearch/configs"
	"github.com/Aman-CERP/codesearch/internal/config"
	"github.com/Aman-CERP/codesearch/internal/output"
	"github.com/Aman-CERP/codesearch/internal/project"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration files",
		Long: `Configuration is layered, in order of increasing precedence:
  1. Built-in defaults
  2. User config ($XDG_CONFIG_HOME/codesearch/config.yaml)
  3. Project config (.codesearch.yaml in the project root)
  4. Environment variables (CODESEARCH_*)`,
	}
	cmd.AddCommand(newConfigShowCmd(a), newConfigInitCmd(), newConfigPathCmd())
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the effective configuration of a project as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := project.ResolveRoot(arg(args))
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig(root)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		force       bool
		projectFile bool
		defaults    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Writes a commented template with every setting at its default.
With --defaults the file instead lists every setting uncommented.`,
		Example: `  codesearch config init
  codesearch config init --project
  codesearch config init --defaults --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, template := config.GetUserConfigPath(), configs.UserConfigTemplate
			if projectFile {
				root, err := project.ResolveRoot("")
				if err != nil {
					return err
				}
				path, template = filepath.Join(root, config.ProjectConfigFile), configs.ProjectConfigTemplate
			}
			if defaults {
				template = ""
			}
			return runConfigInit(cmd, path, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&projectFile, "project", false, "Write .codesearch.yaml in the current project instead of the user config")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write every setting uncommented instead of the template")
	return cmd
}

// runConfigInit writes template to path, or the full default configuration
// when template is empty.
func runConfigInit(cmd *cobra.Command, path, template string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("Configuration already exists: %s", path)
		out.Status("", "Use --force to overwrite it with the defaults")
		return nil
	}
	if template == "" {
		if err := config.NewConfig().WriteYAML(path); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	out.Successf("Wrote %s", path)
	out.Status("", "Edit it, then run 'codesearch config show' to check the result")
	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
