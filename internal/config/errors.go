package config

import (
	"fmt"

	"amoflow/internal/models"
)

// FieldError — ошибка конфигурации или параметров запуска. Всегда возникает
// до первого обращения к amoCRM.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// ValidateStages checks that both stage ids are set and differ.
func ValidateStages(sourceField string, source int64, targetField string, target int64) error {
	if source <= 0 {
		return &FieldError{Field: sourceField, Reason: "is required"}
	}
	if target <= 0 {
		return &FieldError{Field: targetField, Reason: "is required"}
	}
	if source == target {
		return &FieldError{
			Field:  sourceField,
			Reason: fmt.Sprintf("must differ from %s (both are %d)", targetField, source),
		}
	}
	return nil
}

// ValidateMove проверяет параметры переноса сделок.
func ValidateMove(p models.ProcessingParameters) error {
	return ValidateStages("application_stage_id", p.ApplicationStageID, "waiting_stage_id", p.WaitingStageID)
}

// ValidateCopy проверяет параметры копирования сделок.
func ValidateCopy(p models.ProcessingParameters) error {
	return ValidateStages("client_confirmed_stage_id", p.ClientConfirmedStageID, "waiting_stage_id", p.WaitingStageID)
}
