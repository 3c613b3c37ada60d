package models

// ProcessingParameters — параметры одного запуска. Берутся из конфига,
// отдельные поля можно переопределить параметрами запроса.
type ProcessingParameters struct {
	PipelineID             int64   `json:"pipeline_id" yaml:"pipeline_id"`
	ApplicationStageID     int64   `json:"application_stage_id" yaml:"application_stage_id"`
	WaitingStageID         int64   `json:"waiting_stage_id" yaml:"waiting_stage_id"`
	ClientConfirmedStageID int64   `json:"client_confirmed_stage_id" yaml:"client_confirmed_stage_id"`
	BudgetThreshold        float64 `json:"budget_threshold" yaml:"budget_threshold"`
	CopyBudgetValue        float64 `json:"copy_budget_value" yaml:"copy_budget_value"`
	Limit                  int     `json:"limit" yaml:"limit"`
}

// ParameterOverrides holds the optional per-request replacements.
type ParameterOverrides struct {
	PipelineID             *int64
	ApplicationStageID     *int64
	WaitingStageID         *int64
	ClientConfirmedStageID *int64
	BudgetThreshold        *float64
	CopyBudgetValue        *float64
	Limit                  *int
}

// Apply returns a copy of p with every set override applied.
func (o ParameterOverrides) Apply(p ProcessingParameters) ProcessingParameters {
	if o.PipelineID != nil {
		p.PipelineID = *o.PipelineID
	}
	if o.ApplicationStageID != nil {
		p.ApplicationStageID = *o.ApplicationStageID
	}
	if o.WaitingStageID != nil {
		p.WaitingStageID = *o.WaitingStageID
	}
	if o.ClientConfirmedStageID != nil {
		p.ClientConfirmedStageID = *o.ClientConfirmedStageID
	}
	if o.BudgetThreshold != nil {
		p.BudgetThreshold = *o.BudgetThreshold
	}
	if o.CopyBudgetValue != nil {
		p.CopyBudgetValue = *o.CopyBudgetValue
	}
	if o.Limit != nil && *o.Limit > 0 {
		p.Limit = *o.Limit
	}
	return p
}
