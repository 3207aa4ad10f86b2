package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scenecast/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage composition jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(cc *commandContext) *cobra.Command {
	var statusFlag string
	var priorityFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs across all owners, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.ensureStore()
			if err != nil {
				return err
			}
			defer cc.close()

			filter := jobs.Filter{PerPage: limitFlag, SortBy: "created_at", SortDesc: true}
			if statusFlag != "" {
				status, ok := jobs.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				filter.Status = status
			}
			if priorityFlag != "" {
				priority, ok := jobs.ParsePriority(priorityFlag)
				if !ok {
					return fmt.Errorf("unknown priority %q", priorityFlag)
				}
				filter.Priority = priority
			}

			listed, err := store.ListAll(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(listed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(listed))
			for _, job := range listed {
				rows = append(rows, []string{
					shortID(job.ID),
					statusLabel(job.Status, os.Stdout),
					string(job.Priority),
					fmt.Sprintf("%.0f%%", job.Progress),
					truncate(job.Title, 40),
					job.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Priority", "Progress", "Title", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().StringVar(&priorityFlag, "priority", "", "Filter by priority")
	cmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum number of jobs to show")
	return cmd
}

func newJobsShowCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.ensureStore()
			if err != nil {
				return err
			}
			defer cc.close()

			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:          %s\n", job.ID)
			fmt.Fprintf(out, "Status:      %s\n", statusLabel(job.Status, os.Stdout))
			fmt.Fprintf(out, "Priority:    %s\n", job.Priority)
			fmt.Fprintf(out, "Title:       %s\n", job.Title)
			fmt.Fprintf(out, "Description: %s\n", job.Description)
			fmt.Fprintf(out, "Progress:    %.0f%%", job.Progress)
			if job.CurrentStep != "" {
				fmt.Fprintf(out, " (%s)", job.CurrentStep)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Retries:     %d/%d\n", job.RetryCount, job.MaxRetries)
			fmt.Fprintf(out, "Created:     %s\n", job.CreatedAt.Local().Format(time.RFC1123))
			if job.StartedAt != nil {
				fmt.Fprintf(out, "Started:     %s\n", job.StartedAt.Local().Format(time.RFC1123))
			}
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "Completed:   %s\n", job.CompletedAt.Local().Format(time.RFC1123))
			}
			if job.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires:     %s\n", job.ExpiresAt.Local().Format(time.RFC1123))
			}
			if job.OutputPath != "" {
				fmt.Fprintf(out, "Output:      %s (%s, %.1fs, %d bytes)\n",
					job.OutputPath, job.OutputFormat, job.OutputDuration, job.OutputSize)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:       %s\n", job.ErrorMessage)
			}
			if job.WebhookURL != "" {
				fmt.Fprintf(out, "Webhook:     %s (sent: %t)\n", job.WebhookURL, job.WebhookSent)
			}
			return nil
		},
	}
}

func newJobsCancelCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.ensureStore()
			if err != nil {
				return err
			}
			defer cc.close()

			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			if job.Status.IsTerminal() {
				return fmt.Errorf("job %s is already %s", shortID(job.ID), job.Status)
			}

			cancelled, err := cancelJob(cmd.Context(), store, job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled.\n", shortID(cancelled.ID))
			return nil
		},
	}
}

// cancelJob moves the job to cancelled from whatever active status it holds.
// A running render in the daemon loses its terminal transition and cleans up.
func cancelJob(ctx context.Context, store *jobs.Store, job *jobs.Job) (*jobs.Job, error) {
	return store.Transition(ctx, job.ID, job.Status, jobs.StatusCancelled, func(j *jobs.Job) {
		now := time.Now().UTC()
		j.CompletedAt = &now
		j.CurrentStep = "Cancelled"
	})
}

func newJobsRetryCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Queue a failed job for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.ensureStore()
			if err != nil {
				return err
			}
			defer cc.close()

			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			if !job.RetryEligible() {
				return fmt.Errorf("job %s is %s with %d/%d retries used",
					shortID(job.ID), job.Status, job.RetryCount, job.MaxRetries)
			}

			retried, err := store.Transition(cmd.Context(), job.ID, jobs.StatusFailed, jobs.StatusPending, func(j *jobs.Job) {
				j.RetryCount++
				j.Progress = 0
				j.CurrentStep = ""
				j.ErrorMessage = ""
				j.StartedAt = nil
				j.CompletedAt = nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued for retry (%d/%d).\n",
				shortID(retried.ID), retried.RetryCount, retried.MaxRetries)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return strings.TrimSpace(value[:max-1]) + "…"
}
