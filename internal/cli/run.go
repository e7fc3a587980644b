package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weeklybot/internal/app"
	logx "weeklybot/pkg/logx"
	"weeklybot/pkg/systemd"
)

const stopTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			a, err := app.New(flagConfig)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			log := cliLogger()
			if _, err := systemd.Ready(); err != nil {
				log.Warn("sd_notify READY failed", logx.Err(err))
			}
			_, _ = systemd.Status(fmt.Sprintf("%d reminders scheduled", a.ReminderCount()))
			go systemd.Watchdog(ctx, log)

			var reason app.StopReason
			select {
			case s := <-sigs:
				reason = app.StopSIGINT
				if s == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			case <-ctx.Done():
				reason = app.StopAppStop
			}

			_, _ = systemd.Stopping()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
}
