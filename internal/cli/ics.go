package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"weeklybot/internal/calendar"
	"weeklybot/internal/config"
)

func newICSCmd() *cobra.Command {
	var (
		duration time.Duration
		output   string
	)
	cmd := &cobra.Command{
		Use:   "ics",
		Short: "Export enabled events as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := exportCalendar(cfg, time.Now(), duration)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			return os.WriteFile(output, []byte(out), 0o644)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Minute, "Length of each calendar entry")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Write to this file instead of stdout")
	return cmd
}

func exportCalendar(cfg *config.Config, from time.Time, d time.Duration) (string, error) {
	specs, err := cfg.EnabledEvents()
	if err != nil {
		return "", err
	}
	entries := make([]calendar.Entry, 0, len(specs))
	for _, s := range specs {
		entries = append(entries, calendar.Entry{Name: s.Name, Description: s.Message, Event: s.Event})
	}
	return calendar.Export(entries, from, d)
}
