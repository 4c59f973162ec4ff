package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tkrun/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new tkrun project",
	Long: `Initialize a new tkrun project in the current directory.

This creates:
  - .tkrun.json      - Configuration file with environments
  - example.tk.yaml  - Example test file

Examples:
  tkrun init
  tkrun init --force`,
	Args: usageArgs(cobra.NoArgs),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleTest = `vars:
  base: ${baseURL}

steps:
  - name: health
    GET: ${base}/health
    assert:
      - status == 200

  - name: create
    POST: ${base}/resources
    json:
      name: Test Resource
      description: Created by tkrun
    assert:
      - status == 201
      - body.id exists
      - body.name == "Test Resource"
    capture:
      id: body.id

  - name: fetch
    GET: ${base}/resources/${create.id}
    assert:
      - status == 200
      - body.id == ${create.id}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "example.tk.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.DefaultEnvironment = "dev"
	cfg.Headers = map[string]string{"User-Agent": "tkrun/" + version}
	cfg.Environments = map[string]map[string]any{
		"dev":     {"baseURL": "http://localhost:3000"},
		"staging": {"baseURL": "https://staging.api.example.com"},
		"prod":    {"baseURL": "https://api.example.com"},
	}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleTest), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ntkrun project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'tkrun test example.tk.yaml' to execute the example tests.\n")

	return nil
}
