package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/jobq/pkg/model"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ListJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			if asJSON {
				dump := make(map[string]*model.Job, len(jobs))
				for _, job := range jobs {
					dump[job.HexID()] = job
				}
				out, err := json.MarshalIndent(dump, "", "  ")
				if err != nil {
					return fmt.Errorf("encode jobs: %w", err)
				}
				fmt.Println(string(out))
				return nil
			}

			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-10s  %-2s  %-30s  %s\n", "ID", "ST", "NAME", "QUEUED")
			fmt.Printf("%-10s  %-2s  %-30s  %s\n", "--", "--", "----", "------")
			for _, job := range jobs {
				fmt.Printf("%-10s  %-2s  %-30s  %s\n",
					job.HexID(), job.Status.Code(), job.Name, humanize.Time(job.QueuedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the queue as a JSON mapping keyed by job ID")
	return cmd
}
