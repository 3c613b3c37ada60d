package services

import (
	"context"
	"strings"
)

// StageInfo — этап воронки и ключ конфига, под который он, судя по названию, подходит.
type StageInfo struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	SuggestedKey string `json:"suggested_key,omitempty"`
}

type StageReport struct {
	PipelineID   int64       `json:"pipeline_id"`
	PipelineName string      `json:"pipeline_name"`
	Stages       []StageInfo `json:"stages"`
}

var stageHints = []struct {
	key      string
	patterns []string
}{
	{"application_stage_id", []string{"заявк", "application"}},
	{"waiting_stage_id", []string{"ожидан", "wait"}},
	{"client_confirmed_stage_id", []string{"подтверд", "confirm"}},
}

type StageService struct {
	CRM LeadGateway
}

func NewStageService(crm LeadGateway) *StageService {
	return &StageService{CRM: crm}
}

// FindStages lists the stages of a pipeline with a config key suggestion for each.
func (s *StageService) FindStages(ctx context.Context, pipelineID int64) (*StageReport, error) {
	p, err := s.CRM.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	rep := &StageReport{PipelineID: p.ID, PipelineName: p.Name, Stages: []StageInfo{}}
	for _, st := range p.Stages() {
		rep.Stages = append(rep.Stages, StageInfo{
			ID:           st.ID,
			Name:         st.Name,
			Color:        st.Color,
			SuggestedKey: SuggestStageKey(st.Name),
		})
	}
	return rep, nil
}

// SuggestStageKey returns the config key a stage name hints at, or "".
func SuggestStageKey(name string) string {
	n := strings.ToLower(name)
	for _, h := range stageHints {
		for _, p := range h.patterns {
			if strings.Contains(n, p) {
				return h.key
			}
		}
	}
	return ""
}
