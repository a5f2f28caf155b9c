package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/dispatcher"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/id/uuid"
	"github.com/JakeFAU/catalog-enricher/internal/logging"
)

// newEnrichCmd creates the 'enrich' subcommand, which runs the pipeline once
// in the foreground for an existing record.
func newEnrichCmd() *cobra.Command {
	var budget time.Duration

	cmd := &cobra.Command{
		Use:   "enrich <record-id>",
		Short: "Enriches a single record synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runEnrich(cmd, appInstance, args[0], budget)
		},
	}
	cmd.Flags().DurationVar(&budget, "budget", dispatcher.DefaultRunBudget, "upper bound for the whole run")
	return cmd
}

func runEnrich(cmd *cobra.Command, appInstance App, recordID string, budget time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), budget)
	defer cancel()

	rec, err := appInstance.Records().Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", recordID, err)
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	ctx = logging.WithRunID(ctx, runID)

	out, runErr := appInstance.Pipeline().Run(ctx, enrich.Event{RecordID: rec.ID, SourceURL: rec.SourceURL})
	if out.Cause != nil {
		appInstance.Logger().Warn("extraction degraded", zap.String("record_id", rec.ID), zap.Error(out.Cause))
	}
	status := string(out.Status)
	if status == "" {
		status = "-"
	}
	strategy := out.Strategy
	if strategy == "" {
		strategy = "-"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.ID, status, strategy)
	if runErr != nil {
		return fmt.Errorf("enrich %s: %w", rec.ID, runErr)
	}
	return nil
}
