package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kumasuke/remedy/internal/history"
)

var jobsLimit int

// NewJobsCmd creates the jobs command.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded upload jobs",
		Long:  "List past upload jobs from the local history database, newest first.",
		RunE:  runJobs,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum number of jobs to show")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), jobsLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No jobs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tFILE\tFORMAT\tSTATUS\tMOCK")
	for _, e := range entries {
		mock := ""
		if e.Mock {
			mock = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.FileName, e.Format, e.Status, mock)
	}
	return w.Flush()
}
