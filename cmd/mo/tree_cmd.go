package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/modules/org/services"
)

func newTreeCmd(e *env) *cobra.Command {
	var (
		q      queryFlags
		units  []string
		org    string
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the ancestor tree of units, or the tree of a search within an organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseUUIDs("unit", units)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			query, err := q.query(svc)
			if err != nil {
				return err
			}
			ctx = e.context(ctx)

			var tree []*services.TreeNode
			if org != "" {
				orgID, perr := uuid.Parse(org)
				if perr != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --org: %w", perr))
				}
				tree, err = svc.OrgUnitTree(ctx, query, orgID, ids, search)
			} else {
				if len(ids) == 0 {
					return withCode(exitUsage, fmt.Errorf("--unit is required without --org"))
				}
				tree, err = svc.AncestorTree(ctx, query, ids)
			}
			if err != nil {
				return serviceCode(err)
			}
			if asJSON {
				return writeJSONLine(cmd.OutOrStdout(), tree)
			}
			return writeTree(cmd.OutOrStdout(), tree)
		},
	}
	q.register(cmd)
	cmd.Flags().StringSliceVar(&units, "unit", nil, "Unit UUIDs to resolve")
	cmd.Flags().StringVar(&org, "org", "", "Organisation UUID; switches to the search tree")
	cmd.Flags().StringVar(&search, "query", "", "Search term within --org")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of an indented tree")
	return cmd
}
