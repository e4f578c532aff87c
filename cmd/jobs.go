package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/factharbor/verify-cli/internal/jobstore"
	"github.com/factharbor/verify-cli/internal/model"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the external job store",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List verification jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.JobStore.BaseURL == "" {
			return eris.New("VERIFY_JOBSTORE_BASE_URL is not set")
		}

		client := jobstore.NewClient(cfg.JobStore.BaseURL, jobstore.WithAdminKey(cfg.JobStore.AdminKey))
		jobs, err := client.ListAllJobs(cmd.Context(), 100)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JobStore.BaseURL == "" {
			return eris.New("VERIFY_JOBSTORE_BASE_URL is not set")
		}

		client := jobstore.NewClient(cfg.JobStore.BaseURL, jobstore.WithAdminKey(cfg.JobStore.AdminKey))
		job, err := client.GetJob(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		fmt.Printf("id:       %s\n", job.JobID)
		fmt.Printf("status:   %s\n", job.Status)
		fmt.Printf("variant:  %s\n", job.Variant)
		fmt.Printf("progress: %d%%\n", job.Progress)
		fmt.Printf("created:  %s\n", job.CreatedUtc)
		fmt.Printf("updated:  %s\n", job.UpdatedUtc)
		return nil
	},
}

func formatJobsList(w io.Writer, jobs []model.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tVARIANT\tPROGRESS\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n",
			j.JobID, j.Status, j.Variant, j.Progress, j.UpdatedUtc)
	}
	_ = tw.Flush()
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
