package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tkrun/packages/core/config"
	"github.com/abdul-hamid-achik/tkrun/packages/history"
)

var (
	historyDBFlag    string
	historyLimitFlag int
	historyRunFlag   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded test runs",
	Long: `Show runs recorded with 'tkrun test --history'.

Examples:
  tkrun history --history .tkrun/history.db
  tkrun history --limit 5
  tkrun history --run 6f1c...`,
	Args: usageArgs(cobra.NoArgs),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "history", getEnvString("TKRUN_HISTORY", ""), "SQLite history database (env: TKRUN_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 10, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyRunFlag, "run", "", "Show the files of one run")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	path := historyDBFlag
	if path == "" {
		fileConfig, err := config.LoadConfig("")
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		path = fileConfig.History
	}
	if path == "" {
		return withExitCode(ExitUsageError, fmt.Errorf("no history database: pass --history or set \"history\" in the config file"))
	}

	store, err := history.Open(path)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if historyRunFlag != "" {
		files, err := store.Files(cmd.Context(), historyRunFlag)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("run %s not found", historyRunFlag)
		}
		fmt.Fprintln(w, "FILE\tSTATE\tPASSED\tSTEPS\tFAILED\tDURATION\tERROR")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%s\t%s\n", f.Path, f.State, f.Passed, f.Steps, f.Failed, f.Duration, f.Error)
		}
		return nil
	}

	runs, err := store.Recent(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(w, "ID\tSTARTED\tTARGET\tENV\tFILES\tPASSED\tFAILED\tCANCELLED\tP95\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Target, r.Environment,
			r.Files, r.Passed, r.Failed, r.Cancelled, r.P95, r.Duration)
	}
	return nil
}
