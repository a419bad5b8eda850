package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
)

func watchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the task list and print every change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := a.session(ctx)
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = a.cfg.Polling.Interval
			}

			expired := make(chan struct{})
			var once sync.Once
			core.Reconciler.OnSessionExpired(func() { once.Do(func() { close(expired) }) })

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			var lastSeen time.Time
			var lastErr string
			unsubscribe := core.Reconciler.Subscribe(func(s poller.State) {
				mu.Lock()
				defer mu.Unlock()
				if s.LastError != "" && s.LastError != lastErr {
					fmt.Fprintf(out, "refresh failed: %s\n", s.LastError)
				}
				lastErr = s.LastError
				if s.LastCheckedAt == nil || !s.LastCheckedAt.After(lastSeen) {
					return
				}
				lastSeen = *s.LastCheckedAt
				fmt.Fprintf(out, "[%s] %d tasks\n", lastSeen.Format(time.TimeOnly), len(s.Tasks))
				printTasks(out, s.Tasks)
			})
			defer unsubscribe()

			core.Reconciler.Start(ctx, interval)
			defer core.Reconciler.Stop()

			select {
			case <-ctx.Done():
				return nil
			case <-expired:
				return errors.New("session expired: run `taskctl login`")
			}
		},
	}

	cmd.Flags().Duration("interval", 0, "Polling interval (defaults to POLL_INTERVAL)")
	return cmd
}
