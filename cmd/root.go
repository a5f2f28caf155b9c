// Package cmd defines and implements the CLI commands for the enricher executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/app"
	"github.com/JakeFAU/catalog-enricher/internal/config"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/logging"
	"github.com/JakeFAU/catalog-enricher/internal/pipeline"
	"github.com/JakeFAU/catalog-enricher/internal/tool"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// Tests inject a fake through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Records() enrich.RecordStore
	Pipeline() *pipeline.Orchestrator
	Tool() *tool.Bootstrap
	Serve(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "enricher",
		Short: "Enriches catalog records with metadata from their source URL.",
		Long: `enricher reacts to record-created events, extracts title, description,
duration, thumbnail, creator, publication date and tags for the record's
source URL and writes them back to the catalog.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and ENRICHER_* env vars apply without one)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEnrichCmd())
	cmd.AddCommand(newToolCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "enricher: %v\n", err)
		os.Exit(1)
	}
}
