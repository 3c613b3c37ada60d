package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"amoflow/internal/amocrm"
	"amoflow/internal/config"
	"amoflow/internal/models"
	"amoflow/internal/throttle"
)

const moveSampleSize = 10

type MovedLead struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Budget    float64 `json:"budget"`
	OldStage  int64   `json:"old_stage"`
	NewStage  int64   `json:"new_stage"`
	Confirmed bool    `json:"confirmed"`
}

// LeadFailure — сделка, которую не удалось обработать. Партию не прерывает.
type LeadFailure struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Budget        float64 `json:"budget"`
	Error         string  `json:"error"`
	CurrentStage  int64   `json:"current_stage,omitempty"`
	ExpectedStage int64   `json:"expected_stage,omitempty"`
}

type MoveReport struct {
	runInfo
	TotalLeads        int                         `json:"total_leads"`
	FilteredLeads     int                         `json:"filtered_leads"`
	MovedCount        int                         `json:"moved_count"`
	SuccessfullyMoved int                         `json:"successfully_moved"`
	FailedToMove      int                         `json:"failed_to_move"`
	SuccessLeads      []MovedLead                 `json:"success_leads"`
	FailedLeads       []LeadFailure               `json:"failed_leads"`
	Parameters        models.ProcessingParameters `json:"parameters"`
}

type MoveLeadsService struct {
	CRM      LeadGateway
	Params   models.ProcessingParameters
	Throttle config.ThrottleConfig
	Pacer    throttle.Pacer
	Log      *log.Logger
	Now      func() time.Time
}

func NewMoveLeadsService(crm LeadGateway, params models.ProcessingParameters, th config.ThrottleConfig, pacer throttle.Pacer, logger *log.Logger) *MoveLeadsService {
	return &MoveLeadsService{CRM: crm, Params: params, Throttle: th, Pacer: pacer, Log: logger, Now: time.Now}
}

type candidate struct {
	lead   models.Lead
	budget float64
}

// Handle переносит сделки этапа application_stage_id с бюджетом строго больше порога
// на этап waiting_stage_id. Каждая сделка перечитывается до и после PATCH.
func (s *MoveLeadsService) Handle(ctx context.Context, o models.ParameterOverrides) models.Response {
	p := o.Apply(s.Params)
	if err := config.ValidateMove(p); err != nil {
		return models.NewResponse(false, err.Error(), map[string]any{"parameters": p}, s.Now())
	}
	report := &MoveReport{Parameters: p, SuccessLeads: []MovedLead{}, FailedLeads: []LeadFailure{}}

	leads, err := s.CRM.ListLeads(ctx, p.PipelineID, p.ApplicationStageID, p.Limit)
	if err != nil {
		s.Log.WithError(err).Error("[move] не удалось получить сделки")
		return models.NewResponse(false, "failed to fetch leads: "+err.Error(), report, s.Now())
	}

	var onStage []models.Lead
	for _, l := range leads {
		if l.StatusID == p.ApplicationStageID {
			onStage = append(onStage, l)
		}
	}
	report.TotalLeads = len(onStage)
	if len(onStage) == 0 {
		return models.NewResponse(false, fmt.Sprintf("no leads found on stage %d", p.ApplicationStageID), report, s.Now())
	}

	var eligible []candidate
	for _, l := range onStage {
		if b := ExtractBudget(l); b > p.BudgetThreshold {
			eligible = append(eligible, candidate{lead: l, budget: b})
		}
	}
	report.FilteredLeads = len(eligible)
	if len(eligible) == 0 {
		return models.NewResponse(false, fmt.Sprintf("no leads with budget above %g", p.BudgetThreshold), report, s.Now())
	}

	s.Log.WithFields(log.Fields{"total": report.TotalLeads, "eligible": len(eligible)}).Info("[move] start")

	var moved []MovedLead
	var failed []LeadFailure
	var interrupted error
	for i, c := range eligible {
		if i > 0 {
			if err := s.Pacer.Wait(ctx, s.Throttle.MoveDelay); err != nil {
				interrupted = err
				break
			}
		}
		m, f := s.moveOne(ctx, c, p)
		if f != nil {
			s.Log.WithField("lead_id", c.lead.ID).Warnf("[move] %s", f.Error)
			failed = append(failed, *f)
			continue
		}
		moved = append(moved, *m)
	}

	report.MovedCount = len(moved)
	report.SuccessfullyMoved = len(moved)
	report.FailedToMove = len(failed)
	report.SuccessLeads = firstN(moved, moveSampleSize)
	report.FailedLeads = firstN(failed, moveSampleSize)

	s.Log.WithFields(log.Fields{"moved": len(moved), "failed": len(failed)}).Info("[move] done")
	if interrupted != nil {
		return models.NewResponse(false, "move interrupted: "+interrupted.Error(), report, s.Now())
	}
	return models.NewResponse(true, "move completed", report, s.Now())
}

func (s *MoveLeadsService) moveOne(ctx context.Context, c candidate, p models.ProcessingParameters) (*MovedLead, *LeadFailure) {
	fail := func(msg string, current, expected int64) (*MovedLead, *LeadFailure) {
		return nil, &LeadFailure{
			ID: c.lead.ID, Name: c.lead.Name, Budget: c.budget,
			Error: msg, CurrentStage: current, ExpectedStage: expected,
		}
	}

	before, err := s.CRM.GetLead(ctx, c.lead.ID)
	if err != nil {
		return fail("failed to re-read lead: "+err.Error(), 0, 0)
	}
	if before.StatusID != p.ApplicationStageID {
		return fail("lead is no longer on the source stage", before.StatusID, p.ApplicationStageID)
	}

	if err := s.CRM.UpdateLeadStatus(ctx, c.lead.ID, p.WaitingStageID); err != nil {
		if errors.Is(err, amocrm.ErrNotAccepted) {
			return fail("lead update was not accepted", 0, 0)
		}
		return fail("failed to update lead: "+err.Error(), 0, 0)
	}

	if err := s.Pacer.Wait(ctx, s.Throttle.VerifyDelay); err != nil {
		return fail("verification interrupted: "+err.Error(), 0, 0)
	}

	after, err := s.CRM.GetLead(ctx, c.lead.ID)
	if err != nil {
		return fail("failed to verify lead: "+err.Error(), 0, 0)
	}
	if after.StatusID != p.WaitingStageID {
		return fail("status did not change after update", after.StatusID, p.WaitingStageID)
	}

	return &MovedLead{
		ID:        c.lead.ID,
		Name:      c.lead.Name,
		Budget:    c.budget,
		OldStage:  p.ApplicationStageID,
		NewStage:  p.WaitingStageID,
		Confirmed: true,
	}, nil
}
