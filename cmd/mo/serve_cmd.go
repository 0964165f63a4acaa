package main

import (
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := e.config()
			if err != nil {
				return err
			}
			return server.Run(cmd.Context(), conf)
		},
	}
}
