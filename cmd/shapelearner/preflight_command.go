package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
	"shapelearner/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, stores, and the feature extractor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c context.Context, cfg *config.Config, comp *daemonrun.Components) error {
				results := comp.Preflight(c, cfg)
				if ctx.jsonMode() {
					checks := make([]api.CheckResult, 0, len(results))
					for _, r := range results {
						checks = append(checks, api.CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
					}
					if err := writeJSON(cmd, checks); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					for _, r := range results {
						status := "OK"
						if !r.Passed {
							status = "ERROR"
						}
						if r.Detail != "" {
							fmt.Fprintf(out, "%-5s %s: %s\n", status, r.Name, r.Detail)
						} else {
							fmt.Fprintf(out, "%-5s %s\n", status, r.Name)
						}
					}
				}
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
				}
				return nil
			})
		},
	}
}
