package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	logLevelFlag  string
	logFormatFlag string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "tkrun",
	Short: "Declarative API tests in YAML.",
	Long: `tkrun runs API tests written as YAML documents. Each document is an
ordered list of HTTP steps with assertions and captured values that later
steps can use.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.NewLogger(logLevelFlag, logFormatFlag)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		logger = l
		return nil
	},
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	err := rootCmd.ExecuteContext(context.Background())
	_ = logger.Sync()
	if err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", getEnvString("TKRUN_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error (env: TKRUN_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", getEnvString("TKRUN_LOG_FORMAT", "console"), "Log format: console, json (env: TKRUN_LOG_FORMAT)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withExitCode(ExitUsageError, err)
	})

	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
