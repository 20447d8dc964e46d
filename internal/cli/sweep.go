package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete finished jobs whose retention has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.DeleteExpired(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Printf("Deleted %d job(s)\n", deleted)
			return nil
		},
	}
}
