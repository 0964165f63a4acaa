package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/services"
)

type queryFlags struct {
	at       string
	validity string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.at, "at", "", "Effective date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&f.validity, "validity", "present", "past, present or future")
}

func (f *queryFlags) query(svc *services.OrgService) (projection.Query, error) {
	q, err := svc.ParseQuery(strings.TrimSpace(f.at), strings.TrimSpace(f.validity))
	if err != nil {
		return projection.Query{}, withCode(exitUsage, err)
	}
	return q, nil
}

func parseUUIDs(flag string, raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("invalid --%s %q: %w", flag, v, err))
		}
		out = append(out, id)
	}
	return out, nil
}
