package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/jobq/internal/intake"
)

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <script.sh>",
		Short: "Submit a shell script for execution",
		Long: "Copy a shell script into the inbox for the running scheduler to pick up.\n" +
			"The script must carry a #JOBQ directive line naming the job, for example:\n\n" +
			"  #JOBQ --job-name nightly-backup --chdir /var/backups",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := args[0]

			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			in := intake.New(st, intake.Config{
				InboxDir:     cfg.InboxDir(),
				QueueDir:     cfg.QueueDir(),
				MaxQueueSize: cfg.MaxQueueSize,
			}, logger)

			staged, err := in.Submit(cmd.Context(), scriptPath)
			if err != nil {
				return fmt.Errorf("submit %s: %w", scriptPath, err)
			}

			fmt.Printf("Submitted: %s\n", filepath.Base(staged))
			return nil
		},
	}
}
