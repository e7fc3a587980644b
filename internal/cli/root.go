// Package cli implements the weeklybot command line.
package cli

import (
	"github.com/spf13/cobra"

	"weeklybot/internal/config"
	logx "weeklybot/pkg/logx"
)

var (
	flagConfig   string
	flagLogLevel string
)

// NewRootCmd creates the root cobra command for the weeklybot CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "weeklybot",
		Short:        "Weekly reminders delivered to Telegram",
		Long:         "weeklybot fires reminders for recurring weekly events and delivers them to a Telegram chat.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "./config.yaml", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level for one-shot commands (trace, debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newNextCmd(),
		newValidateCmd(),
		newHistoryCmd(),
		newICSCmd(),
	)
	return root
}

func cliLogger() logx.Logger {
	return logx.NewConsole(flagLogLevel).With(logx.String("comp", "cli"))
}

func loadConfig() (*config.Config, error) {
	return config.NewManager(flagConfig).Load()
}
