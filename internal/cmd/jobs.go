package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/service"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// maxMessageWidth bounds the MESSAGE column of the jobs table.
const maxMessageWidth = 60

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Long: `List jobs newest first, for every user or for one user.

Examples:
  # Second page of everyone's jobs
  harmonyctl jobs list --page 2

  # One user's jobs as JSON
  harmonyctl jobs list --user joe --json`,
	RunE: runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <jobID>",
	Short: "Show the status document of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <jobID>",
	Short: "Cancel any user's job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail running jobs that stopped reporting progress",
	Long: `Fail every running job whose last update is older than --minutes. This
is the same pass the server runs periodically.`,
	RunE: runJobsReap,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsStatusCmd, jobsCancelCmd, jobsReapCmd)

	jobsListCmd.Flags().String("user", "", "Only list jobs of this user")
	jobsListCmd.Flags().Int("page", 1, "Page to show, starting at 1")
	jobsListCmd.Flags().Int("limit", store.DefaultPerPage, "Jobs per page")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")

	jobsStatusCmd.Flags().Bool("json", false, "Output the status document as JSON")

	jobsReapCmd.Flags().Int("minutes", 60, "Minutes without an update before a running job is failed")
	jobsReapCmd.Flags().Int("batch-size", 100, "Jobs failed per transaction")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	username, _ := cmd.Flags().GetString("user")
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	var result *store.JobPage
	if username != "" {
		result, err = b.jobs.ListJobs(ctx, username, page, limit)
	} else {
		result, err = b.jobs.ListAllJobs(ctx, page, limit)
	}
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if jsonOutput {
		out := struct {
			Jobs       []models.SerializedJob `json:"jobs"`
			Pagination store.Pagination       `json:"pagination"`
		}{Jobs: make([]models.SerializedJob, 0, len(result.Jobs)), Pagination: result.Pagination}
		for _, job := range result.Jobs {
			sj, err := job.Serialize(b.urlRoot, "")
			if err != nil {
				return fmt.Errorf("serialize job %s: %w", job.RequestID, err)
			}
			out.Jobs = append(out.Jobs, *sj)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(result.Jobs) == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB ID\tUSER\tSTATUS\tPROGRESS\tUPDATED\tMESSAGE")
	for _, job := range result.Jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			job.RequestID, job.Username, job.Status, job.Progress,
			job.UpdatedAt.Format(time.RFC3339), models.TruncateString(job.Message, maxMessageWidth))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	p := result.Pagination
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d jobs)\n", p.CurrentPage, max(p.LastPage, 1), p.Total)
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("jobID %s is in invalid format", args[0])
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	job, err := b.jobs.AdminGetJob(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("unable to find job %s", id)
		}
		return fmt.Errorf("get job: %w", err)
	}

	sj, err := job.Serialize(b.urlRoot, "")
	if err != nil {
		return fmt.Errorf("serialize job %s: %w", id, err)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sj)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job ID:\t%s\n", sj.JobID)
	_, _ = fmt.Fprintf(w, "User:\t%s\n", sj.Username)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", sj.Status)
	_, _ = fmt.Fprintf(w, "Progress:\t%d%%\n", sj.Progress)
	_, _ = fmt.Fprintf(w, "Message:\t%s\n", sj.Message)
	_, _ = fmt.Fprintf(w, "Request:\t%s\n", sj.Request)
	_, _ = fmt.Fprintf(w, "Granules:\t%d\n", sj.NumInputGranules)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", sj.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Updated:\t%s\n", sj.UpdatedAt.Format(time.RFC3339))
	for _, l := range sj.Links {
		_, _ = fmt.Fprintf(w, "Link (%s):\t%s\n", l.Rel, l.Href)
	}
	return w.Flush()
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("jobID %s is in invalid format", args[0])
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	job, err := b.jobs.AdminCancelJob(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("unable to find job %s", id)
		}
		return fmt.Errorf("cancel job: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Canceled job %s owned by %s\n", job.RequestID, job.Username)
	return nil
}

func runJobsReap(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	minutes, _ := cmd.Flags().GetInt("minutes")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if minutes <= 0 {
		return errors.New("--minutes must be positive")
	}
	if batchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	n, err := b.jobs.FailStalledJobs(ctx, minutes, batchSize)
	if err != nil {
		return fmt.Errorf("reap stalled jobs after %d failed: %w", n, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Failed %d stalled jobs\n", n)
	return nil
}
