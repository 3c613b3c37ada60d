package main

import (
	"github.com/spf13/cobra"

	"amoflow/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP-консоль: GET /api?action=move-leads|copy-leads|all",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Build(cmd.Context(), cfg, logr, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(cmd.Context())
	},
}
