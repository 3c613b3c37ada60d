package main

import (
	"github.com/spf13/cobra"

	"amoflow/internal/app"
)

var stagesPipelineID int64

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Этапы воронки с подсказкой, какой id куда прописать в конфиге",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Build(cmd.Context(), cfg, logr, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		id := cfg.Processing.PipelineID
		if stagesPipelineID > 0 {
			id = stagesPipelineID
		}
		rep, err := a.Stages.FindStages(cmd.Context(), id)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	stagesCmd.Flags().Int64Var(&stagesPipelineID, "pipeline-id", 0, "воронка (по умолчанию processing.pipeline_id)")
}
