package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
	"shapelearner/internal/pipeline"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		partID int64
		jobID  int64
		label  string
		nmax   string
		pmax   string
	)

	cmd := &cobra.Command{
		Use:   "process <mesh.stl>",
		Short: "Capture, extract, and classify one part under a tracked job",
		Long: "Runs the full pipeline for a mesh. A job is created unless --job-id names an\n" +
			"existing one; the job ends Completed with a result or Failed with the error.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meshPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			// The feature id is assigned by the extractor, so "0" only
			// validates the filter values here.
			_, filter, err := api.ParsePredict("0", nmax, pmax)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c context.Context, cfg *config.Config, comp *daemonrun.Components) error {
				if err := comp.Classifier.Boot(c, cfg.Classifier.FitOnBoot); err != nil {
					return err
				}
				p, err := comp.Pipeline(cfg, filter, ctx.logger())
				if err != nil {
					return err
				}
				outcome, err := p.Process(c, pipeline.Part{
					JobID:    jobID,
					PartID:   partID,
					MeshPath: meshPath,
					Label:    label,
				})
				if err != nil {
					if outcome.JobID != 0 {
						return fmt.Errorf("job %d failed: %w", outcome.JobID, err)
					}
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, api.FromResult(&outcome.Result))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d completed\n", outcome.JobID)
				fmt.Fprintf(out, "  Views:      %d\n", len(outcome.Views))
				fmt.Fprintf(out, "  Feature id: %d\n", outcome.FeatureID)
				fmt.Fprintf(out, "  Model:      v%d\n", outcome.Result.ModelVersion)
				fmt.Fprintln(out, renderCandidates(out, outcome.Result.Classes))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&partID, "part-id", 0, "Part id passed to the extractor")
	cmd.Flags().Int64Var(&jobID, "job-id", 0, "Reuse an existing job instead of creating one")
	cmd.Flags().StringVar(&label, "label", "", "Known label to store with the extracted features")
	cmd.Flags().StringVar(&nmax, "nmax", "", "Keep at most this many classes")
	cmd.Flags().StringVar(&pmax, "pmax", "", "Drop classes below this confidence, in percent")
	return cmd
}
