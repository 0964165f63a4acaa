package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/modules/org/services"
)

func newMoveEngagementsCmd(e *env) *cobra.Command {
	var (
		unit    string
		date    string
		present []string
		future  []string
	)
	cmd := &cobra.Command{
		Use:   "move-engagements",
		Short: "Move engagements to another unit from a date",
		Long: "Move engagements to another unit from a date.\n\n" +
			"--present takes engagements running on the date. --future takes engagements\n" +
			"starting later, as <uuid> or <uuid>:overwrite to replace them by the moved copy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitID, err := uuid.Parse(strings.TrimSpace(unit))
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --unit: %w", err))
			}
			presentIDs, err := parseUUIDs("present", present)
			if err != nil {
				return err
			}
			futureMoves, err := parseFutureMoves(future)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			created, err := svc.MoveEngagements(e.context(ctx), services.MoveEngagementsRequest{
				OrgUnit: unitID,
				Date:    strings.TrimSpace(date),
				Present: presentIDs,
				Future:  futureMoves,
			})
			if err != nil {
				return serviceCode(err)
			}
			for _, id := range created {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "Destination unit UUID (required)")
	cmd.Flags().StringVar(&date, "date", "", "Move date YYYY-MM-DD (required)")
	cmd.Flags().StringSliceVar(&present, "present", nil, "Engagements running on the date")
	cmd.Flags().StringSliceVar(&future, "future", nil, "Engagements starting after the date (<uuid>[:overwrite])")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func parseFutureMoves(raw []string) ([]services.FutureMove, error) {
	out := make([]services.FutureMove, 0, len(raw))
	for _, v := range raw {
		idPart, mode, _ := strings.Cut(strings.TrimSpace(v), ":")
		id, err := uuid.Parse(idPart)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("invalid --future %q: %w", v, err))
		}
		switch mode {
		case "", "keep":
			out = append(out, services.FutureMove{UUID: id})
		case "overwrite":
			out = append(out, services.FutureMove{UUID: id, Overwrite: true})
		default:
			return nil, withCode(exitUsage, fmt.Errorf("invalid --future mode %q (expected overwrite|keep)", mode))
		}
	}
	return out, nil
}
