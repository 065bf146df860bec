package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/config"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/logging"
	"github.com/555Russich/18.fl-auto-response/internal/observability"
	"github.com/555Russich/18.fl-auto-response/internal/pipeline"
	"github.com/555Russich/18.fl-auto-response/internal/session"
	"github.com/555Russich/18.fl-auto-response/internal/supervisor"
	"github.com/555Russich/18.fl-auto-response/internal/window"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the responder until interrupted",
	Long: `Opens a browser session, drains the backlog of orders and then watches for new ones.
A failed session is torn down and a new one is started after the restart delay.

Configuration can be loaded from a JSON or YAML file using --config. RESPONDER_* environment
variables fill values the file leaves empty, and command-line flags override both.
Credentials are read from LOGIN_PROFI_RU and PASSWORD_PROFI_RU.`,
	RunE: runResponderCmd,
}

var (
	runConfigPath  string
	runStore       string
	runPatternFile string
	runCookieFile  string
	runLogFile     string
	runLogLevel    string
	runHeadless    bool
	runDevelopment bool
	runMaxRestarts int
	runVerbose     bool
)

func init() {
	addRunFlags(runCommand)
	rootCmd.AddCommand(runCommand)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")
	cmd.Flags().StringVar(&runStore, "store", "", "Record store DSN: file://, sqlite://, postgres:// or redis://")
	cmd.Flags().StringVar(&runPatternFile, "pattern", "", "Path to the exclusion pattern file")
	cmd.Flags().StringVar(&runCookieFile, "cookies", "", "Path to the saved browser cookies")
	cmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to the rotated JSON log")
	cmd.Flags().StringVar(&runLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().BoolVar(&runHeadless, "headless", true, "Run Chrome without a window")
	cmd.Flags().BoolVar(&runDevelopment, "dev", false, "Human readable console logs")
	cmd.Flags().IntVar(&runMaxRestarts, "max-restarts", 0, "Stop after this many failed sessions (0 restarts forever)")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every session event and record outcome")
}

func runResponderCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveRunConfig(cmd)
	if err != nil {
		return err
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		File:        cfg.LogFile,
		Level:       cfg.LogLevel,
		Development: cfg.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	opts := pipelineOptions(cfg, creds, logger)
	if runVerbose {
		printer := observability.NewPrinter(cmd.OutOrStdout())
		opts.OnProgress = printer.PrintEvent
	}
	builder := pipeline.NewBuilder(opts)

	sup := supervisor.New(func(ctx context.Context) (supervisor.Session, error) {
		eng, err := builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}, supervisor.Options{
		RestartDelay: cfg.RestartDelay.Std(),
		MaxRestarts:  cfg.MaxRestarts,
		Logger:       logger.Named("supervisor"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("responder starting",
		zap.String("store", cfg.Store),
		zap.String("pattern_file", cfg.PatternFile),
		zap.Bool("headless", cfg.HeadlessOrDefault()),
	)
	err = sup.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("responder stopped")
		return nil
	}
	return err
}

// resolveRunConfig layers the config file, the environment, the defaults and the flags.
func resolveRunConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if runConfigPath != "" {
		loaded, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	env, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	cfg = cfg.MergeWithDefaults(env)
	cfg = cfg.MergeWithDefaults(config.Defaults())

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = runStore
	}
	if flags.Changed("pattern") {
		cfg.PatternFile = runPatternFile
	}
	if flags.Changed("cookies") {
		cfg.CookieFile = runCookieFile
	}
	if flags.Changed("log-file") {
		cfg.LogFile = runLogFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = runLogLevel
	}
	if flags.Changed("headless") {
		headless := runHeadless
		cfg.Headless = &headless
	}
	if flags.Changed("dev") {
		cfg.Development = runDevelopment
	}
	if flags.Changed("max-restarts") {
		cfg.MaxRestarts = runMaxRestarts
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// pipelineOptions translates a validated config into builder options.
func pipelineOptions(cfg config.Config, creds session.Credentials, logger *zap.Logger) pipeline.Options {
	browser := driver.DefaultOptions()
	browser.Headless = cfg.HeadlessOrDefault()
	if cfg.UserAgent != "" {
		browser.UserAgent = cfg.UserAgent
	}
	browser.ExecPath = cfg.ChromePath
	browser.ActionTimeout = cfg.Timings.ActionTimeout.Std()
	browser.LocateTimeout = cfg.Timings.LocateTimeout.Std()
	browser.CaptureURL = cfg.Site.APIPattern

	t := cfg.Timings
	return pipeline.Options{
		Site:        cfg.Site,
		Credentials: creds,
		CookieFile:  cfg.CookieFile,
		StoreDSN:    cfg.Store,
		CacheTTL:    cfg.CacheTTL.Std(),
		PatternFile: cfg.PatternFile,
		Window:      window.Default(),
		Timings: pipeline.Timings{
			DiscoveryPoll:     t.DiscoveryPoll.Std(),
			DiscoveryAttempts: t.DiscoveryAttempts,
			DetailSettle:      t.DetailSettle.Std(),
			DetailRetry:       t.DetailRetry.Std(),
			DetailAttempts:    t.DetailAttempts,
			ActionStep:        t.ActionStep.Std(),
			ScrollPause:       t.ScrollPause.Std(),
			IdleSleep:         t.IdleSleep.Std(),
			AuthSettle:        t.AuthSettle.Std(),
		},
		Browser: browser,
		Logger:  logger,
	}
}
