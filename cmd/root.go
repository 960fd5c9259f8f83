// Package cmd defines and implements the CLI commands for the paperscroll executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TsaiLintung/paper-scroll/internal/app"
	"github.com/TsaiLintung/paper-scroll/internal/config"
	"github.com/TsaiLintung/paper-scroll/internal/feed"
	"github.com/TsaiLintung/paper-scroll/internal/logging"
	"github.com/TsaiLintung/paper-scroll/internal/scroll"
	"github.com/TsaiLintung/paper-scroll/internal/settings"
	"github.com/TsaiLintung/paper-scroll/internal/syncer"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands use. Tests inject their own.
type App interface {
	Serve(ctx context.Context) error
	SyncOnce(ctx context.Context, onStatus func(scroll.Status)) (syncer.Result, error)
	Settings() *settings.Service
	Feed() *feed.Assembler
	Sampler() *feed.Sampler
	Store() scroll.Store
	Config() config.Config
	Close(ctx context.Context) error
}

// appFactory builds the App from the --config path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func defaultApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(newApp appFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "paperscroll",
		Short: "Scroll through random papers from the journals you follow.",
		Long: `paperscroll syncs the DOI listings of configured journals from Crossref,
then serves a shuffled feed of those papers resolved through OpenAlex.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env PAPERSCROLL_* overrides apply)")

	cmd.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newFeedCmd(),
		newJournalCmd(),
		newConfigCmd(),
		newStarCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(defaultApp).ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Debug("command execution failed", zap.Error(err))
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// resyncHint tells CLI users when a settings change needs a new sync.
func resyncHint(cmd *cobra.Command, update settings.Update) {
	if update.Resync {
		fmt.Fprintln(cmd.OutOrStdout(), "snapshots are out of date, run `paperscroll sync` to refresh them")
	}
}
