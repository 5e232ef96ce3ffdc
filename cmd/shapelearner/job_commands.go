package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shapelearner/internal/api"
	"shapelearner/internal/config"
	"shapelearner/internal/daemonrun"
	"shapelearner/internal/jobs"
	"shapelearner/internal/services"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create, update, and inspect jobs",
	}
	jobCmd.AddCommand(newJobCreateCommand(ctx))
	jobCmd.AddCommand(newJobUpdateCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	return jobCmd
}

func newJobCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a job in the Created status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				id, err := comp.Jobs.Create(c)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, api.CreateJobResponse{JobID: id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d\n", id)
				return nil
			})
		},
	}
}

func newJobUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		status   string
		expect   string
		partID   int64
		partName string
		workerIP string
		port     int
		message  string
	)

	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Overwrite a job's status and fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			update, err := api.ToUpdateRequest(api.UpdateJobRequest{
				JobID:          api.FlexInt(id),
				JobStatus:      status,
				PartID:         api.FlexInt(partID),
				PartName:       partName,
				ServerIP:       workerIP,
				ServerPort:     api.FlexInt(port),
				Message:        message,
				ExpectedStatus: expect,
			})
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				if _, err := comp.Jobs.Update(c, update); err != nil {
					return err
				}
				job, err := comp.Jobs.Get(c, id)
				if err != nil {
					return err
				}
				return printJob(cmd, ctx, job, nil)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "New status (Created, InProgress, Completed, Failed)")
	cmd.Flags().StringVar(&expect, "expect", "", "Only update when the job currently has this status")
	cmd.Flags().Int64Var(&partID, "part-id", 0, "Feature row id of the part")
	cmd.Flags().StringVar(&partName, "part-name", "", "Part name")
	cmd.Flags().StringVar(&workerIP, "worker-ip", "", "Address of the worker handling the job")
	cmd.Flags().IntVar(&port, "worker-port", 0, "Port of the worker handling the job")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Progress message")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its classification result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				job, err := comp.Jobs.Get(c, id)
				if err != nil {
					return err
				}
				result, err := comp.Jobs.Result(c, id)
				if err != nil && !errors.Is(err, services.ErrNotFound) {
					return err
				}
				return printJob(cmd, ctx, job, result)
			})
		},
	}
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []jobs.Status
			for _, value := range statuses {
				status, err := jobs.ParseStatus(value)
				if err != nil {
					return err
				}
				filter = append(filter, status)
			}
			return ctx.withComponents(cmd, func(c context.Context, _ *config.Config, comp *daemonrun.Components) error {
				list, err := comp.Jobs.List(c, filter...)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, api.JobListResponse{Jobs: api.FromJobs(list)})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					dto := api.FromJob(job)
					rows = append(rows, []string{
						strconv.FormatInt(dto.IDJob, 10),
						dto.JobStatus,
						strconv.FormatInt(dto.PartID, 10),
						dto.PartName,
						workerAddress(dto.ServerIP, dto.ServerPort),
						dto.UpdateDate,
						dto.Message,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Status", "Part", "Name", "Worker", "Updated", "Message"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list jobs in these statuses")
	return cmd
}

func printJob(cmd *cobra.Command, ctx *commandContext, job *jobs.Job, result *jobs.Result) error {
	dto := api.FromJob(job)
	if ctx.jsonMode() {
		payload := map[string]any{"job": dto}
		if result != nil {
			payload["result"] = api.FromResult(result)
		}
		return writeJSON(cmd, payload)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %d\n", dto.IDJob)
	fmt.Fprintf(out, "  Status:  %s\n", dto.JobStatus)
	fmt.Fprintf(out, "  Part:    %d %s\n", dto.PartID, dto.PartName)
	fmt.Fprintf(out, "  Worker:  %s\n", workerAddress(dto.ServerIP, dto.ServerPort))
	fmt.Fprintf(out, "  Message: %s\n", dto.Message)
	fmt.Fprintf(out, "  Updated: %s\n", dto.UpdateDate)
	if result != nil {
		fmt.Fprintf(out, "  Model:   v%d\n", result.ModelVersion)
		fmt.Fprintln(out, renderCandidates(out, result.Classes))
	}
	return nil
}

func workerAddress(ip string, port int) string {
	if strings.TrimSpace(ip) == "" {
		return "-"
	}
	if port == 0 {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, port)
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
