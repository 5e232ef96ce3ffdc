package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
	"shapelearner/internal/knn"
	"shapelearner/internal/services"
)

// featureRecord is one row of an import file.
type featureRecord struct {
	ID       int64     `json:"id"`
	Label    string    `json:"label"`
	Features []float64 `json:"features"`
}

func newFeaturesCommand(ctx *commandContext) *cobra.Command {
	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Manage stored feature rows",
	}
	featuresCmd.AddCommand(newFeaturesImportCommand(ctx))
	featuresCmd.AddCommand(newFeaturesStatsCommand(ctx))
	return featuresCmd
}

func newFeaturesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <rows.json>",
		Short: "Insert or replace feature rows from a JSON array",
		Long: "Reads a JSON array of {\"id\": 1, \"label\": \"gear\", \"features\": [...]} objects.\n" +
			"The feature table is created on first import; every row must share its width.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := readFeatureFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				if err := comp.Features.EnsureTable(c, len(samples[0].Features)); err != nil {
					return err
				}
				if err := comp.Features.Upsert(c, samples); err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"imported": len(samples), "table": comp.Features.Table()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows into %s\n", len(samples), comp.Features.Table())
				return nil
			})
		},
	}
}

func newFeaturesStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count stored feature rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				total, labeled, err := comp.Features.Count(c)
				if err != nil {
					return err
				}
				maxID, err := comp.Features.MaxID(c)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"table": comp.Features.Table(), "rows": total, "labeled": labeled, "maxID": maxID})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Table:   %s\n", comp.Features.Table())
				fmt.Fprintf(out, "Rows:    %d\n", total)
				fmt.Fprintf(out, "Labeled: %d\n", labeled)
				fmt.Fprintf(out, "Max id:  %d\n", maxID)
				return nil
			})
		},
	}
}

func readFeatureFile(path string) ([]knn.Sample, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read feature file: %w", err)
	}
	var records []featureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, services.Wrap(services.ErrValidation, "features", "import", "feature file is not a JSON array of rows", err)
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrValidation, "features", "import", "feature file holds no rows", nil)
	}
	samples := make([]knn.Sample, 0, len(records))
	for _, r := range records {
		samples = append(samples, knn.Sample{ID: r.ID, Label: r.Label, Features: r.Features})
	}
	return samples, nil
}
