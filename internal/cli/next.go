package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"weeklybot/internal/app"
	"weeklybot/internal/config"
	"weeklybot/internal/storage"
)

func newNextCmd() *cobra.Command {
	var (
		count int
		now   string
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the upcoming occurrences of every enabled event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			from := time.Now()
			if now != "" {
				from, err = time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
			}

			up, err := app.Schedule(cfg, from, count)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}
			return printUpcoming(cmd.Context(), cmd.OutOrStdout(), up, store)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Occurrences to print per event")
	cmd.Flags().StringVar(&now, "now", "", "Resolve from this instant (RFC3339) instead of the current time")
	return cmd
}

func openStore(cfg *config.Config) (storage.Store, error) {
	sc, err := cfg.StorageRuntime()
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, cliLogger())
}

func printUpcoming(ctx context.Context, w io.Writer, up []app.Upcoming, store storage.Store) error {
	if len(up) == 0 {
		fmt.Fprintln(w, "no events enabled")
		return nil
	}
	for _, u := range up {
		fmt.Fprintf(w, "%s (%s)\n", u.Name, u.Event)
		for _, at := range u.At {
			fmt.Fprintf(w, "  %s\n", at.Format("Mon 2006-01-02 15:04 MST"))
		}
		if store == nil {
			continue
		}
		rec, ok, err := store.LastFiring(ctx, u.Name)
		if err != nil {
			return fmt.Errorf("last firing of %s: %w", u.Name, err)
		}
		if ok {
			fmt.Fprintf(w, "  last fired %s (%s)\n", rec.FiredAt.In(u.Event.Location()).Format("Mon 2006-01-02 15:04 MST"), result(rec))
		}
	}
	return nil
}

func result(r storage.Record) string {
	if r.OK() {
		return "ok"
	}
	return "error: " + r.Error
}
