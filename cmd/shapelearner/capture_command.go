package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shapelearner/internal/capture"
	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var level string
	var difficulty []int
	var workers int

	cmd := &cobra.Command{
		Use:   "capture [mesh.stl...]",
		Short: "Render multi-view images of STL meshes",
		Long: "Render every view of the given meshes. Without arguments, every STL file under\n" +
			"the configured input directory is captured and the category tree is mirrored\n" +
			"under the output directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sched, err := resolveSchedule(ctx, level, difficulty)
			if err != nil {
				return err
			}
			if strings.TrimSpace(outputDir) == "" {
				outputDir = cfg.Paths.OutputDir
			}

			var targets []capture.Target
			if len(args) == 0 {
				targets, err = capture.Discover(cfg.Paths.InputDir, outputDir)
				if err != nil {
					return err
				}
			} else {
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return err
					}
					targets = append(targets, capture.Target{MeshPath: path, OutputDir: outputDir})
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no STL meshes found under %s", cfg.Paths.InputDir)
			}

			if workers <= 0 {
				workers = cfg.Render.Workers
			}
			report, err := capture.Batch(cmd.Context(), targets, sched, capture.BatchOptions{
				Workers:    workers,
				NewContext: func() capture.Context { return daemonrun.NewRenderContext(cfg) },
				LockDir:    cfg.Paths.LockDir,
				Logger:     ctx.logger(),
				Capture:    []capture.Option{capture.WithTimeout(cfg.CaptureTimeout())},
			})
			if err != nil {
				return err
			}

			if ctx.jsonMode() {
				failures := make([]map[string]string, 0, len(report.Failures))
				for _, f := range report.Failures {
					failures = append(failures, map[string]string{"mesh": f.MeshPath, "error": f.Err.Error()})
				}
				if err := writeJSON(cmd, map[string]any{
					"meshes":   report.Meshes,
					"views":    report.Views,
					"failures": failures,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Captured %d views from %d meshes into %s\n", report.Views, report.Meshes-len(report.Failures), outputDir)
				for _, f := range report.Failures {
					fmt.Fprintf(out, "  failed: %s: %v\n", filepath.Base(f.MeshPath), f.Err)
				}
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d of %d meshes failed", len(report.Failures), report.Meshes)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory receiving the frames (default: paths.output_dir)")
	cmd.Flags().StringVar(&level, "level", "", "Difficulty preset overriding the configuration")
	cmd.Flags().IntSliceVar(&difficulty, "difficulty", nil, "Explicit band sizes overriding the configuration")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel rendering contexts (default: render.workers)")
	return cmd
}
