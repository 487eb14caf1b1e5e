package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agnt5dev/devloop/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage devloop configuration",
	}

	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .devloop.yaml",
		Long: `Init writes the effective configuration (defaults merged with any
environment overrides) to a config file, as a starting point for
per-project customisation.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			if !force {
				if _, err := os.Stat(output); err == nil {
					return &ExitError{Code: 2, Err: fmt.Errorf("%s already exists (use --force to overwrite)", output)}
				}
			}

			data, err := renderConfigFile(cfg)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".devloop.yaml", "output file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

// configFile is the on-disk shape of .devloop.yaml. Only the keys users
// commonly override are rendered.
type configFile struct {
	Workspace    string `yaml:"workspace"`
	BlueprintDir string `yaml:"blueprint-dir"`
	SDKPythonDir string `yaml:"sdk-python-dir"`
	SDKCoreDir   string `yaml:"sdk-core-dir"`
	VenvPath     string `yaml:"venv-path"`
	Debounce     string `yaml:"debounce"`
	LogLevel     string `yaml:"log-level"`
	LogFormat    string `yaml:"log-format"`
}

func renderConfigFile(cfg *config.Config) ([]byte, error) {
	out := configFile{
		Workspace:    cfg.Workspace,
		BlueprintDir: cfg.BlueprintDir,
		SDKPythonDir: cfg.SDKPythonDir,
		SDKCoreDir:   cfg.SDKCoreDir,
		VenvPath:     cfg.VenvPath,
		Debounce:     cfg.Debounce.String(),
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	header := []byte("# devloop configuration. Flags and environment variables take precedence.\n")

	return append(header, data...), nil
}
