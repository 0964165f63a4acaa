package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/internal/server"
	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/composables"
	"github.com/os2mo/mora/pkg/configuration"
)

// env is what the commands share. Tests fill it in up front; otherwise it
// is built from the configuration on first use.
type env struct {
	envFiles []string
	conf     *configuration.Configuration
	org      *services.OrgService
	pool     *pgxpool.Pool
}

func (e *env) config() (*configuration.Configuration, error) {
	if e.conf != nil {
		return e.conf, nil
	}
	conf, err := configuration.Load(e.envFiles)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("configuration: %w", err))
	}
	e.conf = conf
	return conf, nil
}

func (e *env) service(ctx context.Context) (*services.OrgService, error) {
	if e.org != nil {
		return e.org, nil
	}
	conf, err := e.config()
	if err != nil {
		return nil, err
	}
	if e.pool == nil {
		e.pool = server.OpenSettingsPool(ctx, conf)
	}
	backend, err := server.NewBackend(ctx, conf, e.pool, conf.Logger())
	if err != nil {
		return nil, withCode(exitStore, err)
	}
	e.org = services.NewOrgService(backend.Repository, backend.Options...)
	return e.org, nil
}

// context carries the settings pool for the repository.
func (e *env) context(ctx context.Context) context.Context {
	if e.pool != nil {
		ctx = composables.WithPool(ctx, e.pool)
	}
	return ctx
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	if e.conf != nil {
		e.conf.Unload()
	}
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mo",
		Short:         "Operator tool for the MO organisation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&e.envFiles, "env-file", []string{".env", ".env.local"}, "env files read before the environment")

	cmd.AddCommand(newServeCmd(e))
	cmd.AddCommand(newTreeCmd(e))
	cmd.AddCommand(newHistoryCmd(e))
	cmd.AddCommand(newMoveEngagementsCmd(e))
	cmd.AddCommand(newSettingsCmd(e))
	cmd.AddCommand(newMigrateCmd(e))
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &env{}
	err := newRootCmd(e).ExecuteContext(ctx)
	e.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
