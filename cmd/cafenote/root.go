package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cafenote/internal/app"
	"cafenote/pkg/auth"
	"cafenote/pkg/config"
	"cafenote/pkg/events"
	"cafenote/pkg/logger"
	"cafenote/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	accountName   string
	databasePath  string
	metricsAddr   string
	eventsFile    string
	noColor       bool
	notifications bool
	verbose       bool

	// set by PersistentPreRunE
	cfg     *config.Config
	console = ui.NewConsole(os.Stdout)
)

var rootCmd = &cobra.Command{
	Use:   "cafenote",
	Short: "Find recent cafe authors and send them a note",
	Long: `cafenote crawls the boards of one or more Naver cafes for members who posted
within a recent window, then sends each selected member a note.

Workflow:
  1. cafenote auth login              store your browser session cookies
  2. cafenote sources add <menu URL>  choose the boards to watch
  3. cafenote crawl --period 1day     collect authors not contacted before
  4. cafenote send --template hello   send the note (50 per day at most)

Every delivered note is recorded in a local ledger so the same member is
never collected or contacted twice.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.SetColor(false)
		}

		flags := map[string]interface{}{
			"account":      accountName,
			"database":     databasePath,
			"log-level":    logLevel,
			"metrics-addr": metricsAddr,
		}
		loaded, err := config.Load(configFile, flags)
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logger.Initialize(&cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.GetLogger().DebugWithFields("Configuration loaded", map[string]interface{}{
			"command":  cmd.CommandPath(),
			"account":  cfg.Naver.Account,
			"database": cfg.Storage.Database,
		})
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		console.Error("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.cafenote.yaml or ~/.config/cafenote/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "stored account to use")
	rootCmd.PersistentFlags().StringVar(&databasePath, "database", "", "ledger database path")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().StringVar(&eventsFile, "events-file", "", "append every progress event as a JSON line to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per author and recipient")

	rootCmd.SetVersionTemplate(`cafenote {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// signalContext is cancelled on Ctrl-C so runs stop between pages or recipients
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openApp wires the pipeline for commands that talk to the platform or the
// ledger. withSession loads the stored cookies for the configured account.
func openApp(ctx context.Context, withSession bool) (*app.App, func(), error) {
	log := logger.GetLogger()

	var notifier *ui.Notifier
	if notifications {
		notifier = ui.NewNotifier(ui.PlatformSender(), console)
	}
	renderer := ui.NewRenderer(console, notifier, cfg.Send.DailyLimit, verbose)

	opts := app.Options{
		Handlers: []events.Handler{renderer.Handle},
		Logger:   log,
	}

	var eventsOut *os.File
	if eventsFile != "" {
		f, err := os.OpenFile(eventsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open events file: %w", err)
		}
		eventsOut = f
		opts.EventsLog = f
	}

	if withSession {
		manager, err := auth.NewDefaultManager()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		if account, err := manager.Retrieve(cfg.Naver.Account); err == nil && account.UserAgent != "" {
			cfg.Naver.UserAgent = account.UserAgent
		}
		opts.Loader = func(context.Context) (string, error) {
			return manager.CookieHeader(cfg.Naver.Account)
		}
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		if eventsOut != nil {
			eventsOut.Close()
		}
		return nil, nil, err
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	go func() {
		if err := a.ServeMetrics(metricsCtx); err != nil {
			log.WithError(err).Warn("Metrics server stopped")
		}
	}()

	cleanup := func() {
		stopMetrics()
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("Failed to close app")
		}
		if eventsOut != nil {
			eventsOut.Close()
		}
	}
	return a, cleanup, nil
}
