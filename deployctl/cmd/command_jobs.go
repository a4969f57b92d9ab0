package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	jobsStatus string
	logsLimit  int
)

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		job, err := apiClient().GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, job)
		}
		printJob(cmd, job)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		jobs, err := apiClient().ListJobs(ctx, jobsStatus)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, jobs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tHOST\tSTATUS\tTARGET\tCREATED")
		for _, job := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				job.ID, job.JobType, job.Host, job.Status, jobTarget(job), job.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		job, err := apiClient().CancelJob(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, job)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Job %s cancelled\n", job.ID)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show the output an agent uploaded for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printLogs(cmd, args[0], logsLimit)
	},
}

func registerJobCommands(root *cobra.Command) {
	root.AddCommand(jobCmd)
	root.AddCommand(jobsCmd)
	root.AddCommand(cancelCmd)
	root.AddCommand(logsCmd)

	jobsCmd.Flags().StringVarP(&jobsStatus, "status", "s", "", "Filter by status (pending/running/success/failed/cancelled)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 100, "Maximum number of log blocks")
}

func printLogs(cmd *cobra.Command, id string, limit int) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	entries, err := apiClient().JobLogs(ctx, id, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, entries)
	}
	for _, entry := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "--- %s [%s]\n%s\n", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Level, strings.TrimRight(entry.Message, "\n"))
	}
	return nil
}

func printJob(cmd *cobra.Command, job *models.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Type:     %s\n", job.JobType)
	fmt.Fprintf(out, "Host:     %s\n", job.Host)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	if target := jobTarget(job); target != "" {
		fmt.Fprintf(out, "Target:   %s\n", target)
	}
	if job.AssignedAgent != nil {
		fmt.Fprintf(out, "Agent:    %s\n", *job.AssignedAgent)
	}
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.StartedAt != nil {
		fmt.Fprintf(out, "Started:  %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if job.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *job.Error)
	}
}

func jobTarget(job *models.Job) string {
	if job.Repo != "" {
		ref := job.Ref
		if ref == "" {
			ref = "main"
		}
		return job.Repo + "@" + ref
	}
	if image, ok := job.Metadata["image"].(string); ok {
		return image
	}
	if command, ok := job.Metadata["command"].(string); ok {
		return "$ " + command
	}
	return ""
}
