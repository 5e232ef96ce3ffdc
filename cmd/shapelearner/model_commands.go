package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
	"shapelearner/internal/knn"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Train, inspect, and query the classifier",
	}
	modelCmd.AddCommand(newModelFitCommand(ctx))
	modelCmd.AddCommand(newModelPredictCommand(ctx))
	modelCmd.AddCommand(newModelRecomputeCommand(ctx))
	modelCmd.AddCommand(newModelInfoCommand(ctx))
	return modelCmd
}

func newModelFitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fit",
		Short: "Train a model from the feature store and persist it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				model, err := comp.Classifier.Recompute(c)
				if err != nil {
					return err
				}
				return printModel(cmd, ctx, model)
			})
		},
	}
}

func newModelPredictCommand(ctx *commandContext) *cobra.Command {
	var nmax, pmax string

	cmd := &cobra.Command{
		Use:   "predict <feature-id>",
		Short: "Classify a stored feature row with the latest persisted model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, filter, err := api.ParsePredict(args[0], nmax, pmax)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				if err := comp.Classifier.Boot(c, false); err != nil {
					return err
				}
				prediction, err := comp.Classifier.PredictID(c, id, filter)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, api.FromPrediction(prediction))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Part %d (model v%d)\n", prediction.PartID, prediction.ModelVersion)
				fmt.Fprintln(out, renderCandidates(out, prediction.Classes))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&nmax, "nmax", "", "Keep at most this many classes")
	cmd.Flags().StringVar(&pmax, "pmax", "", "Drop classes below this confidence, in percent")
	return cmd
}

func newModelRecomputeCommand(ctx *commandContext) *cobra.Command {
	var address string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Ask the running daemon to retrain and swap its model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(address) == "" {
				address = cfg.API.Bind
			}
			url := address
			if !strings.Contains(url, "://") {
				url = "http://" + url
			}
			url = strings.TrimRight(url, "/") + "/recomputeModel"

			c, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			req, err := http.NewRequestWithContext(c, http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			if cfg.API.Token != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.API.Token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("contact daemon at %s: %w", address, err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fmt.Errorf("read daemon response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Daemon address (default: api.bind)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the retrain")
	return cmd
}

func newModelInfoCommand(ctx *commandContext) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe a persisted model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				var (
					model *knn.Model
					err   error
				)
				if version > 0 {
					model, err = comp.Models.LoadVersion(c, version)
				} else {
					model, err = comp.Models.Load(c)
				}
				if err != nil {
					return err
				}
				return printModel(cmd, ctx, model)
			})
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "Model version (default: latest)")
	return cmd
}

func printModel(cmd *cobra.Command, ctx *commandContext, model *knn.Model) error {
	info := api.FromModel(model)
	if ctx.jsonMode() {
		return writeJSON(cmd, info)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model v%d\n", info.Version)
	fmt.Fprintf(out, "  Samples:   %d\n", info.Samples)
	fmt.Fprintf(out, "  Features:  %d\n", info.Width)
	fmt.Fprintf(out, "  Neighbors: %d (%s)\n", info.Neighbors, info.Weighting)
	if info.TrainedAt != "" {
		fmt.Fprintf(out, "  Trained:   %s\n", info.TrainedAt)
	}
	labels := make([]string, 0, len(info.Labels))
	for _, label := range info.Labels {
		labels = append(labels, displayLabel(label))
	}
	fmt.Fprintf(out, "  Labels:    %s\n", strings.Join(labels, ", "))
	return nil
}

func renderCandidates(out io.Writer, classes []knn.Candidate) string {
	if len(classes) == 0 {
		return "  (no class passed the filter)"
	}
	rows := make([][]string, 0, len(classes))
	for i, c := range classes {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			displayLabel(c.Label),
			strconv.FormatFloat(c.Probability*100, 'f', 1, 64) + "%",
		})
	}
	return renderTable(out, []string{"#", "Class", "Confidence"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
}
