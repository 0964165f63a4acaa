package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newHistoryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history <unit-uuid>",
		Short: "Print the registrations of a unit, one JSON object per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid unit uuid: %w", err))
			}
			ctx := cmd.Context()
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			entries, err := svc.GetOrgUnitHistory(e.context(ctx), id)
			if err != nil {
				return serviceCode(err)
			}
			for _, entry := range entries {
				if err := writeJSONLine(cmd.OutOrStdout(), entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
