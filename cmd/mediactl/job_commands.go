package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/media-relay/internal/api/dto"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var req dto.CreateJobRequest

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Queue a media URL for retrieval and delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.SourceURL = args[0]
			resp, err := ctx.client().Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", resp.JobID, resp.Stage)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.ChatID, "chat", 0, "Destination chat id")
	cmd.Flags().IntVar(&req.StatusMessageID, "message", 0, "Status message id to edit with progress")
	cmd.Flags().StringVar(&req.Kind, "kind", "audio", "Media kind: audio or video")
	cmd.Flags().StringVar(&req.RequesterName, "requester", "", "Name shown in logs for the requester")
	_ = cmd.MarkFlagRequired("chat")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var req dto.ListJobsRequest

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().List(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Kind", "Stage", "Attempts", "Chat", "Created"},
				jobRows(resp.Jobs, time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			if resp.NextCursor != "" {
				fmt.Fprintf(out, "More: mediactl list --cursor %s\n", resp.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.ChatID, "chat", 0, "Only jobs for this chat")
	cmd.Flags().StringVar(&req.Kind, "kind", "", "Only jobs of this kind")
	cmd.Flags().StringVar(&req.Stage, "stage", "", "Only jobs in this stage")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 20, "Jobs per page")
	cmd.Flags().StringVar(&req.Cursor, "cursor", "", "Cursor from a previous page")

	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Ask the worker to stop a job before its next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s (currently %s)\n", job.JobID, job.Stage)
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printJob(out io.Writer, job *dto.JobDTO) {
	fmt.Fprintf(out, "Job:       %s\n", job.JobID)
	fmt.Fprintf(out, "URL:       %s\n", job.SourceURL)
	fmt.Fprintf(out, "Kind:      %s\n", job.Kind)
	fmt.Fprintf(out, "Stage:     %s\n", job.Stage)
	fmt.Fprintf(out, "Attempts:  %d\n", job.Attempts)
	fmt.Fprintf(out, "Chat:      %d (message %d)\n", job.ChatID, job.StatusMessageID)
	if job.CancelRequested {
		fmt.Fprintln(out, "Cancel:    requested")
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt)
	if job.CompletedAt != "" {
		fmt.Fprintf(out, "Completed: %s\n", job.CompletedAt)
	}
}

func jobRows(jobs []dto.JobDTO, now time.Time) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		created := job.CreatedAt
		if t, err := time.Parse(time.RFC3339, job.CreatedAt); err == nil {
			created = humanize.RelTime(t, now, "ago", "from now")
		}
		rows = append(rows, []string{
			job.JobID,
			job.Kind,
			job.Stage,
			strconv.Itoa(job.Attempts),
			strconv.FormatInt(job.ChatID, 10),
			created,
		})
	}
	return rows
}
