package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
)

var listCmd = &cobra.Command{
	Use:   "list [file|directory]...",
	Short: "List the steps in test files",
	Long: `List the steps defined in tkrun test files.

Examples:
  tkrun list users.tk.yaml
  tkrun list ./tests/`,
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	for _, file := range files {
		plan, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for _, step := range plan.Steps {
			name := step.Name
			if name == "" {
				name = fmt.Sprintf("step %d", step.Index+1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s: %s %s\n", name, step.Request.Method, step.Request.URL)

			var notes []string
			if step.Optional {
				notes = append(notes, "optional")
			}
			if step.Retry != nil {
				notes = append(notes, fmt.Sprintf("retry %d", step.Retry.Attempts))
			}
			if step.When != "" {
				notes = append(notes, "when "+step.When)
			}
			if step.Skip != "" {
				notes = append(notes, "skip: "+step.Skip)
			}
			if len(notes) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    (%s)\n", strings.Join(notes, ", "))
			}
		}
	}

	return nil
}
