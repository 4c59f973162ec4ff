package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/discovery"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file|directory]...",
	Short: "Validate test files without running them",
	Long: `Parse test files and report syntax errors and warnings without
sending any requests.

Examples:
  tkrun validate users.tk.yaml
  tkrun validate ./tests/`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	hasErrors := false
	for _, file := range files {
		plan, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d steps)\n", file, len(plan.Steps))
		for _, w := range plan.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", w)
		}
	}

	if hasErrors {
		return withExitCode(ExitParseError, fmt.Errorf("validation failed"))
	}
	return nil
}

// collectFiles expands file and directory arguments into test documents.
// No arguments means the current directory.
func collectFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	files, err := discovery.FindAll(args)
	if err != nil {
		if errors.Is(err, discovery.ErrNoTestFiles) {
			return nil, withExitCode(ExitUsageError, err)
		}
		return nil, withExitCode(ExitUsageError, fmt.Errorf("cannot collect test files: %w", err))
	}
	return files, nil
}
