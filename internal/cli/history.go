package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <event>",
		Short: "Print recent firings of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("storage is disabled (storage.driver)")
			}
			defer store.Close()

			recs, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(w, "no firings recorded for %s\n", args[0])
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(w, "%s  scheduled %s  took %dms  %s\n",
					r.FiredAt.Format(time.RFC3339),
					r.ScheduledFor.Format(time.RFC3339),
					r.TookMS,
					result(r),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum records to print")
	return cmd
}
