package main

import (
	"github.com/spf13/cobra"

	"amoflow/internal/app"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Обменять amocrm.authorization_code на токен и сохранить его",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Authorize(cmd.Context(), cfg, logr)
	},
}
