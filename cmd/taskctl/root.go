package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/frontend/go-services/internal/config"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
	"github.com/taskboard/taskboard/frontend/go-services/internal/server"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
)

var errNotLoggedIn = errors.New("not logged in: run `taskctl login`")

// app builds the core lazily so --help works without any configuration.
type app struct {
	// scheduler overrides the wall-clock scheduler used by watch.
	scheduler poller.Scheduler
	cfg       *config.Config
	core      *server.Core
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "taskctl - terminal client for the taskboard task service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(loginCmd(a))
	rootCmd.AddCommand(registerCmd(a))
	rootCmd.AddCommand(logoutCmd(a))
	rootCmd.AddCommand(whoamiCmd(a))
	rootCmd.AddCommand(tasksCmd(a))
	rootCmd.AddCommand(watchCmd(a))
	return rootCmd
}

func (a *app) load(ctx context.Context) error {
	if a.core != nil {
		return nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// a CLI without a persistent store would forget the login on exit
	if os.Getenv("CREDENTIAL_STORE") == "" {
		cfg.Session.Store = config.StoreFile
	}
	rdb := server.ConnectRedis(ctx, cfg)
	store, err := server.NewCredentialStore(cfg, rdb)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.core = server.NewCore(cfg, store, a.scheduler)
	return nil
}

// session loads the core and restores the persisted login.
func (a *app) session(ctx context.Context) (*server.Core, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	if !a.core.Guard.IsAuthenticated() && !a.core.Guard.Restore(ctx) {
		return nil, errNotLoggedIn
	}
	return a.core, nil
}

// explain turns core errors into messages for the terminal.
func explain(err error) error {
	var ae *session.AuthError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionExpired):
		return errors.New("session expired: run `taskctl login`")
	case errors.As(err, &ae):
		return ae
	}
	return err
}
