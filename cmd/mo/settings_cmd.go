package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/pkg/composables"
)

var errNoSettingsDB = errors.New("settings database unavailable")

func newSettingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage unit settings",
	}

	var unit string
	set := &cobra.Command{
		Use:   "set <key> <value> [<key> <value>...]",
		Short: "Store settings for a unit, or globally without --unit",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return withCode(exitUsage, fmt.Errorf("expected key/value pairs, got %d arguments", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var unitID *uuid.UUID
			if strings.TrimSpace(unit) != "" {
				id, err := uuid.Parse(strings.TrimSpace(unit))
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --unit: %w", err))
				}
				unitID = &id
			}
			ctx := cmd.Context()
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			if e.pool == nil {
				return withCode(exitDB, errNoSettingsDB)
			}
			// All pairs land together or not at all.
			err = composables.InTx(e.context(ctx), func(ctx context.Context) error {
				for i := 0; i < len(args); i += 2 {
					if err := svc.SetSetting(ctx, unitID, args[i], args[i+1]); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return serviceCode(err)
			}
			return nil
		},
	}
	set.Flags().StringVar(&unit, "unit", "", "Unit UUID")
	cmd.AddCommand(set)
	return cmd
}
