package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"amoflow/internal/app"
	"amoflow/internal/models"
	"amoflow/internal/services"
)

var (
	reportPath string
	overrides  struct {
		budgetThreshold float64
		copyBudgetValue float64
		limit           int
	}
)

var runCmd = &cobra.Command{
	Use:       "run move|copy|all",
	Short:     "Разовый запуск переноса и/или копирования сделок",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"move", "copy", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := services.ParseAction(args[0])
		if err != nil {
			return err
		}

		var o models.ParameterOverrides
		if cmd.Flags().Changed("budget-threshold") {
			o.BudgetThreshold = &overrides.budgetThreshold
		}
		if cmd.Flags().Changed("copy-budget-value") {
			o.CopyBudgetValue = &overrides.copyBudgetValue
		}
		if cmd.Flags().Changed("limit") {
			o.Limit = &overrides.limit
		}

		a, err := app.Build(cmd.Context(), cfg, logr, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, sum := a.Runner.Run(cmd.Context(), action, o)
		if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if reportPath != "" {
			if err := a.Report.WriteFile(services.BuildReport(sum), reportPath); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			logr.Infof("[run] отчёт сохранён в %s", reportPath)
		}
		if !resp.Success {
			return errRunFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&reportPath, "report", "", "сохранить PDF-отчёт о запуске")
	runCmd.Flags().Float64Var(&overrides.budgetThreshold, "budget-threshold", 0, "порог бюджета для переноса")
	runCmd.Flags().Float64Var(&overrides.copyBudgetValue, "copy-budget-value", 0, "точный бюджет для копирования")
	runCmd.Flags().IntVar(&overrides.limit, "limit", 0, "размер страницы")
}

// writeJSON печатает с отступами и без экранирования кириллицы и HTML.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
