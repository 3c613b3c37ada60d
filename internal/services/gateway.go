package services

import (
	"context"

	"amoflow/internal/models"
)

// LeadGateway — то, что сервисам нужно от amoCRM. Реализуется *amocrm.Client.
type LeadGateway interface {
	ListLeads(ctx context.Context, pipelineID, statusID int64, limit int) ([]models.Lead, error)
	GetLead(ctx context.Context, id int64) (*models.Lead, error)
	UpdateLeadStatus(ctx context.Context, id, statusID int64) error
	CreateLead(ctx context.Context, lead models.NewLead) (int64, error)
	ListLeadNotes(ctx context.Context, leadID int64) ([]models.Note, error)
	CreateLeadNote(ctx context.Context, leadID int64, note models.NewNote) (int64, error)
	ListLeadTasks(ctx context.Context, leadID int64) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.NewTask) (int64, error)
	ListPipelines(ctx context.Context) ([]models.Pipeline, error)
	GetPipeline(ctx context.Context, id int64) (*models.Pipeline, error)
}

// runInfo is embedded in every report so the runner can stamp a run id.
type runInfo struct {
	RunID string `json:"run_id,omitempty"`
}

func (r *runInfo) setRunID(id string) { r.RunID = id }

type runStamped interface{ setRunID(string) }

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		return []T{}
	}
	return items
}
