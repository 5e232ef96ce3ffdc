package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shapelearner/internal/daemonrun"
	"shapelearner/internal/render"
)

type scheduleView struct {
	Difficulty []int     `json:"difficulty"`
	Views      int       `json:"views"`
	Vertical   float64   `json:"vertical"`
	Horizontal []float64 `json:"horizontal"`
}

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var level string
	var difficulty []int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the rotation schedule for a difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := resolveSchedule(ctx, level, difficulty)
			if err != nil {
				return err
			}
			view := scheduleView{
				Difficulty: sched.Difficulty(),
				Views:      sched.Views(),
				Vertical:   sched.Vertical(),
				Horizontal: sched.HorizontalIncrements(),
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, sched.Bands())
			for band := 0; band < sched.Bands(); band++ {
				rows = append(rows, []string{
					strconv.Itoa(band),
					strconv.Itoa(sched.BandSize(band)),
					formatDegrees(sched.Horizontal(band)),
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Band", "Views", "Horizontal"}, rows, []columnAlignment{alignRight, alignRight, alignRight}))
			fmt.Fprintf(out, "Views: %d\n", view.Views)
			fmt.Fprintf(out, "Vertical increment: %s\n", formatDegrees(view.Vertical))
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Difficulty preset (low, medium, high, extreme, ultimate)")
	cmd.Flags().IntSliceVar(&difficulty, "difficulty", nil, "Explicit band sizes, e.g. 1,3,6,8,6,3,1")
	return cmd
}

// resolveSchedule prefers explicit band sizes, then a named level, then the
// configured render settings.
func resolveSchedule(ctx *commandContext, level string, difficulty []int) (render.Schedule, error) {
	if len(difficulty) > 0 {
		return render.NewSchedule(difficulty)
	}
	if level != "" {
		parsed, err := render.ParseLevel(level)
		if err != nil {
			return render.Schedule{}, err
		}
		return parsed.Schedule()
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return render.Schedule{}, err
	}
	return daemonrun.Schedule(cfg)
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "°"
}
