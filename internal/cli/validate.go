package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("invalid config %s: %w", flagConfig, err)
			}
			specs, _ := cfg.EnabledEvents()
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d of %d events enabled\n", len(specs), len(cfg.Events))
			for _, s := range specs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", s.Name, s.Event)
			}
			return nil
		},
	}
}
