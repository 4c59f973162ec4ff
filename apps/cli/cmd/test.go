package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/core/config"
	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
	"github.com/abdul-hamid-achik/tkrun/packages/discovery"
	"github.com/abdul-hamid-achik/tkrun/packages/history"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
	"github.com/abdul-hamid-achik/tkrun/packages/logging"
	"github.com/abdul-hamid-achik/tkrun/packages/metrics"
	"github.com/abdul-hamid-achik/tkrun/packages/output"
)

var testCmd = &cobra.Command{
	Use:   "test [file|directory]",
	Short: "Run API tests",
	Long: `Run API tests from tkrun YAML documents.

A file argument runs that one document and stops at its first fatal error.
A directory, or no argument at all, runs every *.tk.yaml / *.tk.yml file
found below it; every file is attempted and the outcome of each is reported.

Examples:
  tkrun test users.tk.yaml
  tkrun test users.tk.yaml --env staging
  tkrun test ./tests -c 4 -o junit --output-file report.xml
  tkrun test --var token=abc --watch`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: testCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond

	varEnvPrefix = "TKRUN_VAR_"
)

var (
	envFlag         string
	envFileFlag     string
	configFlag      string
	varFlags        []string
	verboseFlag     int
	bailFlag        bool
	timeoutFlag     string
	noColorFlag     bool
	outputFlag      string
	outputFileFlag  string
	concurrencyFlag int
	watchFlag       bool
	proxyFlag       string
	insecureFlag    bool
	rateFlag        float64
	metricsFileFlag string
	historyFlag     string
)

func init() {
	testCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("TKRUN_ENV", ""), "Environment from the config file (env: TKRUN_ENV)")
	testCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("TKRUN_ENV_FILE", ""), "Path to .env file (env: TKRUN_ENV_FILE)")
	testCmd.Flags().StringVar(&configFlag, "config", getEnvString("TKRUN_CONFIG", ""), "Path to config file (env: TKRUN_CONFIG)")
	testCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable, name=value (repeatable; env: TKRUN_VAR_<name>)")

	testCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output")
	testCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TKRUN_NO_COLOR", false), "Disable colored output (env: TKRUN_NO_COLOR)")
	testCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("TKRUN_OUTPUT", "console"), "Output format: console, json, junit, tap (env: TKRUN_OUTPUT)")
	testCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("TKRUN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: TKRUN_OUTPUT_FILE)")

	testCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("TKRUN_BAIL", false), "Stop a file at its first failed step (env: TKRUN_BAIL)")
	testCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("TKRUN_TIMEOUT", "30s"), "Default step timeout (e.g., 30s, 1m) (env: TKRUN_TIMEOUT)")
	testCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", getEnvInt("TKRUN_CONCURRENCY", driver.DefaultConcurrency), "Files run at once in directory mode (env: TKRUN_CONCURRENCY)")
	testCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")

	testCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("TKRUN_PROXY", ""), "Proxy URL for HTTP requests (env: TKRUN_PROXY)")
	testCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("TKRUN_INSECURE", false), "Disable SSL certificate validation (env: TKRUN_INSECURE)")
	testCmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("TKRUN_RATE", 0), "Maximum requests per second, 0 for unlimited (env: TKRUN_RATE)")

	testCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("TKRUN_METRICS_FILE", ""), "Write Prometheus metrics to file (env: TKRUN_METRICS_FILE)")
	testCmd.Flags().StringVar(&historyFlag, "history", getEnvString("TKRUN_HISTORY", ""), "Record runs in this SQLite database (env: TKRUN_HISTORY)")
}

// settings is the effective configuration of one `tkrun test` invocation:
// flags the user set, then the config file, then flag defaults.
type settings struct {
	environment     *env.Environment
	variables       map[string]any
	timeout         time.Duration
	bail            bool
	concurrency     int
	output          string
	outputFile      string
	noColor         bool
	verbose         bool
	followRedirects bool
	maxRedirects    int
	validateSSL     bool
	proxy           string
	baseURL         string
	headers         map[string]string
	rate            float64
	metricsFile     string
	history         string
	logLevel        string
	logFormat       string
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	s := &settings{
		bail:            bailFlag,
		concurrency:     concurrencyFlag,
		output:          strings.ToLower(outputFlag),
		outputFile:      outputFileFlag,
		noColor:         noColorFlag,
		verbose:         verboseFlag > 0,
		followRedirects: fileConfig.GetFollowRedirects(),
		maxRedirects:    fileConfig.MaxRedirects,
		validateSSL:     fileConfig.GetValidateSSL() && !insecureFlag,
		proxy:           proxyFlag,
		baseURL:         fileConfig.BaseURL,
		headers:         fileConfig.Headers,
		rate:            rateFlag,
		metricsFile:     metricsFileFlag,
		history:         historyFlag,
		logLevel:        logLevelFlag,
		logFormat:       logFormatFlag,
	}

	s.timeout, err = time.ParseDuration(timeoutFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
	}
	if !flagSet(cmd, "timeout", "TKRUN_TIMEOUT") && fileConfig.Timeout > 0 {
		s.timeout = fileConfig.TimeoutDuration()
	}
	if !flagSet(cmd, "bail", "TKRUN_BAIL") {
		s.bail = fileConfig.GetBail()
	}
	if !flagSet(cmd, "concurrency", "TKRUN_CONCURRENCY") && fileConfig.Concurrency > 0 {
		s.concurrency = fileConfig.Concurrency
	}
	if !flagSet(cmd, "output", "TKRUN_OUTPUT") && fileConfig.Output != "" {
		s.output = fileConfig.Output
	}
	if !flagSet(cmd, "output-file", "TKRUN_OUTPUT_FILE") {
		s.outputFile = fileConfig.OutputFile
	}
	if !flagSet(cmd, "no-color", "TKRUN_NO_COLOR") {
		s.noColor = fileConfig.GetNoColor()
	}
	if s.proxy == "" {
		s.proxy = fileConfig.Proxy
	}
	if !flagSet(cmd, "rate", "TKRUN_RATE") {
		s.rate = fileConfig.RateLimit
	}
	if s.metricsFile == "" {
		s.metricsFile = fileConfig.MetricsFile
	}
	if s.history == "" {
		s.history = fileConfig.History
	}
	if !rootFlagSet(cmd, "log-level", "TKRUN_LOG_LEVEL") && fileConfig.LogLevel != "" {
		s.logLevel = fileConfig.LogLevel
	}
	if !rootFlagSet(cmd, "log-format", "TKRUN_LOG_FORMAT") && fileConfig.LogFormat != "" {
		s.logFormat = fileConfig.LogFormat
	}

	if _, err := output.New(s.output, output.Options{}); err != nil {
		return nil, err
	}
	if s.concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", s.concurrency)
	}

	envFile := envFileFlag
	if envFile == "" {
		envFile = fileConfig.EnvFile
	}
	if envFile != "" {
		if _, err := env.LoadAndExportDotEnv(envFile); err != nil {
			return nil, err
		}
	} else if _, err := env.LoadOptionalDotEnv(".env"); err != nil {
		return nil, err
	}

	envName := envFlag
	if envName == "" {
		envName = fileConfig.DefaultEnvironment
	}
	s.environment, err = env.LoadEnvironment(envName, fileConfig.Environments)
	if err != nil {
		return nil, err
	}

	cliVars, err := env.ParseAssignments(varFlags)
	if err != nil {
		return nil, err
	}
	s.variables = env.MergeVariables(env.LoadSystemEnv(varEnvPrefix), cliVars)

	return s, nil
}

func rootFlagSet(cmd *cobra.Command, name, envKey string) bool {
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil && f.Changed {
		return true
	}
	return os.Getenv(envKey) != ""
}

// session holds what stays the same across the runs of one invocation,
// which is more than one only in watch mode.
type session struct {
	settings  *settings
	driver    *driver.Driver
	collector *metrics.Collector
	store     *history.Store
	logger    *zap.Logger
	stdout    io.Writer
}

func newSession(s *settings, stdout io.Writer, log *zap.Logger) (*session, error) {
	clientOpts := []http.ClientOption{
		http.WithTimeout(s.timeout),
		http.WithFollowRedirects(s.followRedirects),
		http.WithValidateSSL(s.validateSSL),
		http.WithLogger(log),
	}
	if s.maxRedirects > 0 {
		clientOpts = append(clientOpts, http.WithMaxRedirects(s.maxRedirects))
	}
	if s.proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(s.proxy))
	}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, http.WithBaseURL(s.baseURL))
	}
	if len(s.headers) > 0 {
		clientOpts = append(clientOpts, http.WithDefaultHeaders(s.headers))
	}
	if s.rate > 0 {
		clientOpts = append(clientOpts, http.WithRateLimit(s.rate, 1))
	}

	sess := &session{settings: s, logger: log, stdout: stdout}

	runnerOpts := []runner.Option{
		runner.WithClient(http.NewClient(clientOpts...)),
		runner.WithLogger(log),
	}
	if s.metricsFile != "" {
		sess.collector = metrics.NewCollector()
		runnerOpts = append(runnerOpts, runner.WithObserver(sess.collector))
	}
	if s.history != "" {
		store, err := history.Open(s.history)
		if err != nil {
			return nil, err
		}
		sess.store = store
	}

	r := runner.NewRunner(&runner.Config{
		Environment: s.environment,
		Variables:   s.variables,
		Timeout:     s.timeout,
		Bail:        s.bail,
	}, runnerOpts...)
	sess.driver = driver.New(r, driver.WithConcurrency(s.concurrency), driver.WithLogger(log))

	return sess, nil
}

func (s *session) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// run executes target once and reports it. The returned error carries the
// exit code.
func (s *session) run(ctx context.Context, target string, single bool) error {
	out := s.stdout
	if s.settings.outputFile != "" {
		f, err := os.Create(s.settings.outputFile)
		if err != nil {
			return withExitCode(ExitConfigError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		out = f
	}

	formatter, err := output.New(s.settings.output, output.Options{
		Writer:  out,
		Verbose: s.settings.verbose,
		NoColor: s.settings.noColor,
	})
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	formatter.FormatHeader(version)

	started := time.Now()
	var (
		summary *driver.Summary
		runErr  error
	)
	if single {
		verdict, err := s.driver.RunFile(ctx, target)
		summary = driver.Summarize([]*runner.FileVerdict{verdict}, time.Since(started))
		if err != nil {
			runErr = withExitCode(phaseExitCode(verdict.Phase), err)
		} else if !verdict.Passed {
			runErr = withExitCode(ExitTestFailure, summary.Err())
		}
	} else {
		summary, err = s.driver.RunDir(ctx, target)
		if err != nil {
			formatter.FormatError(err)
			if errors.Is(err, discovery.ErrNoTestFiles) {
				return withExitCode(ExitUsageError, err)
			}
			return withExitCode(ExitConfigError, err)
		}
		if err := summary.Err(); err != nil {
			code := ExitTestFailure
			if summary.Cancelled > 0 && ctx.Err() != nil {
				code = ExitCancelled
			}
			runErr = withExitCode(code, err)
		}
	}

	for _, v := range summary.Files {
		formatter.FormatResult(v)
	}
	if err := formatter.Flush(summary); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}

	s.record(ctx, target, started, summary)
	return runErr
}

// record writes metrics and history. Failures here never fail the run.
func (s *session) record(ctx context.Context, target string, started time.Time, summary *driver.Summary) {
	if s.collector != nil {
		if err := s.collector.Write(s.settings.metricsFile); err != nil {
			s.logger.Warn("failed to write metrics", zap.String("path", s.settings.metricsFile), zap.Error(err))
		}
	}
	if s.store != nil {
		// Record even when the run was interrupted.
		id, err := s.store.Record(context.WithoutCancel(ctx), target, s.settings.environment.Name, started, summary)
		if err != nil {
			s.logger.Warn("failed to record run history", zap.Error(err))
			return
		}
		s.logger.Debug("run recorded", zap.String("id", id))
	}
}

func testCommand(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = filepath.Clean(args[0])
	}
	info, err := os.Stat(target)
	if err != nil {
		return withExitCode(ExitUsageError, fmt.Errorf("cannot access %s: %w", target, err))
	}
	single := !info.IsDir()

	s, err := loadSettings(cmd)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	log := logger
	if s.logLevel != logLevelFlag || s.logFormat != logFormatFlag {
		if log, err = logging.NewLogger(s.logLevel, s.logFormat); err != nil {
			return withExitCode(ExitConfigError, err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(s, cmd.OutOrStdout(), log)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer sess.Close()

	runErr := sess.run(ctx, target, single)
	if !watchFlag {
		return runErr
	}
	if runErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", runErr)
	}
	return watch(ctx, sess, target, single, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
