package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"amoflow/internal/amocrm"
	"amoflow/internal/config"
	"amoflow/internal/models"
	"amoflow/internal/throttle"
)

const (
	copySampleSize = 5
	copySuffix     = " (copy)"
	budgetEpsilon  = 0.01
)

type CopiedLead struct {
	OriginalLeadID int64  `json:"original_lead_id"`
	NewLeadID      int64  `json:"new_lead_id"`
	Name           string `json:"name"`
	NotesCopied    int    `json:"notes_copied"`
	TasksCopied    int    `json:"tasks_copied"`
}

type CopyFailure struct {
	OriginalLeadID int64  `json:"original_lead_id"`
	Name           string `json:"name"`
	Error          string `json:"error"`
}

type CopyReport struct {
	runInfo
	TotalLeads         int                         `json:"total_leads"`
	FilteredLeads      int                         `json:"filtered_leads"`
	CopiedCount        int                         `json:"copied_count"`
	SuccessfullyCopied int                         `json:"successfully_copied"`
	FailedToCopy       int                         `json:"failed_to_copy"`
	SuccessCopies      []CopiedLead                `json:"success_copies"`
	FailedCopies       []CopyFailure               `json:"failed_copies"`
	Parameters         models.ProcessingParameters `json:"parameters"`
	PipelineName       string                      `json:"pipeline_name,omitempty"`
}

type CopyLeadsService struct {
	CRM      LeadGateway
	Params   models.ProcessingParameters
	Throttle config.ThrottleConfig
	Pacer    throttle.Pacer
	Log      *log.Logger
	Now      func() time.Time
}

func NewCopyLeadsService(crm LeadGateway, params models.ProcessingParameters, th config.ThrottleConfig, pacer throttle.Pacer, logger *log.Logger) *CopyLeadsService {
	return &CopyLeadsService{CRM: crm, Params: params, Throttle: th, Pacer: pacer, Log: logger, Now: time.Now}
}

// Handle копирует сделки этапа client_confirmed_stage_id с бюджетом, равным copy_budget_value
// (с точностью до 0.01), на этап waiting_stage_id вместе с примечаниями и задачами.
func (s *CopyLeadsService) Handle(ctx context.Context, o models.ParameterOverrides) models.Response {
	p := o.Apply(s.Params)
	if err := config.ValidateCopy(p); err != nil {
		return models.NewResponse(false, err.Error(), map[string]any{"parameters": p}, s.Now())
	}
	report := &CopyReport{Parameters: p, SuccessCopies: []CopiedLead{}, FailedCopies: []CopyFailure{}}

	leads, err := s.CRM.ListLeads(ctx, p.PipelineID, p.ClientConfirmedStageID, p.Limit)
	if err != nil {
		s.Log.WithError(err).Error("[copy] не удалось получить сделки")
		return models.NewResponse(false, "failed to fetch leads: "+err.Error(), report, s.Now())
	}

	var matching []candidate
	for _, l := range leads {
		if l.StatusID != p.ClientConfirmedStageID || l.PipelineID != p.PipelineID {
			continue
		}
		report.TotalLeads++
		if b := ExtractBudget(l); math.Abs(b-p.CopyBudgetValue) < budgetEpsilon {
			matching = append(matching, candidate{lead: l, budget: b})
		}
	}
	report.FilteredLeads = len(matching)
	if len(matching) == 0 {
		return models.NewResponse(false, fmt.Sprintf("no leads with budget %g to copy", p.CopyBudgetValue), report, s.Now())
	}

	s.Log.WithFields(log.Fields{"total": report.TotalLeads, "matching": len(matching)}).Info("[copy] start")

	var copied []CopiedLead
	var failed []CopyFailure
	var interrupted error
	for i, c := range matching {
		if i > 0 {
			if err := s.Pacer.Wait(ctx, s.Throttle.CopyDelay); err != nil {
				interrupted = err
				break
			}
		}
		res, err := s.copyOne(ctx, c.lead, p)
		if err != nil {
			s.Log.WithError(err).WithField("lead_id", c.lead.ID).Warn("[copy] сделка не скопирована")
			failed = append(failed, CopyFailure{OriginalLeadID: c.lead.ID, Name: c.lead.Name, Error: err.Error()})
			continue
		}
		copied = append(copied, *res)
	}

	report.CopiedCount = len(copied)
	report.SuccessfullyCopied = len(copied)
	report.FailedToCopy = len(failed)
	report.SuccessCopies = firstN(copied, copySampleSize)
	report.FailedCopies = firstN(failed, copySampleSize)
	report.PipelineName = s.pipelineName(ctx, p.PipelineID)

	s.Log.WithFields(log.Fields{"copied": len(copied), "failed": len(failed)}).Info("[copy] done")
	if interrupted != nil {
		return models.NewResponse(false, "copy interrupted: "+interrupted.Error(), report, s.Now())
	}
	return models.NewResponse(true, "copy completed", report, s.Now())
}

// copyOne: ошибка создания сделки прерывает только эту сделку; ошибки примечаний и задач
// лишь уменьшают счётчики.
func (s *CopyLeadsService) copyOne(ctx context.Context, lead models.Lead, p models.ProcessingParameters) (*CopiedLead, error) {
	newID, err := s.CRM.CreateLead(ctx, newLeadFrom(lead, p.WaitingStageID))
	if err != nil {
		if errors.Is(err, amocrm.ErrNotAccepted) {
			return nil, errors.New("failed to create lead copy")
		}
		return nil, fmt.Errorf("failed to create lead copy: %w", err)
	}

	res := &CopiedLead{OriginalLeadID: lead.ID, NewLeadID: newID, Name: lead.Name + copySuffix}
	items := 0
	pause := func() error {
		items++
		if items == 1 {
			return nil
		}
		return s.Pacer.Wait(ctx, s.Throttle.ItemDelay)
	}

	notes, err := s.CRM.ListLeadNotes(ctx, lead.ID)
	if err != nil {
		s.Log.WithError(err).WithField("lead_id", lead.ID).Warn("[copy] не удалось получить примечания")
	}
	for _, n := range notes {
		if err := pause(); err != nil {
			return res, nil
		}
		if _, err := s.CRM.CreateLeadNote(ctx, newID, copyNote(n, newID)); err != nil {
			s.Log.WithError(err).WithField("new_lead_id", newID).Warn("[copy] примечание не скопировано")
			continue
		}
		res.NotesCopied++
	}

	tasks, err := s.CRM.ListLeadTasks(ctx, lead.ID)
	if err != nil {
		s.Log.WithError(err).WithField("lead_id", lead.ID).Warn("[copy] не удалось получить задачи")
	}
	for _, t := range tasks {
		if err := pause(); err != nil {
			return res, nil
		}
		if _, err := s.CRM.CreateTask(ctx, copyTask(t, newID, s.Now())); err != nil {
			s.Log.WithError(err).WithField("new_lead_id", newID).Warn("[copy] задача не скопирована")
			continue
		}
		res.TasksCopied++
	}
	return res, nil
}

func (s *CopyLeadsService) pipelineName(ctx context.Context, id int64) string {
	pipelines, err := s.CRM.ListPipelines(ctx)
	if err != nil {
		s.Log.WithError(err).Warn("[copy] не удалось получить воронки")
	}
	for _, pl := range pipelines {
		if pl.ID == id {
			return pl.Name
		}
	}
	return fmt.Sprintf("unknown pipeline (ID: %d)", id)
}

func newLeadFrom(lead models.Lead, targetStage int64) models.NewLead {
	nl := models.NewLead{
		Name:               lead.Name + copySuffix,
		StatusID:           targetStage,
		PipelineID:         lead.PipelineID,
		CustomFieldsValues: lead.CustomFieldsValues,
	}
	if lead.Price != nil {
		nl.Price = *lead.Price
	}
	if contacts := lead.Contacts(); len(contacts) > 0 {
		nl.Embedded = &models.LeadEmbedded{Contacts: make([]models.LeadContact, 0, len(contacts))}
		for _, c := range contacts {
			nl.Embedded.Contacts = append(nl.Embedded.Contacts, models.LeadContact{ID: c.ID, IsMain: c.IsMain})
		}
	}
	return nl
}

func copyNote(n models.Note, newLeadID int64) models.NewNote {
	noteType := n.NoteType
	if noteType == "" {
		noteType = "common"
	}
	params := n.Params
	if params == nil {
		params = map[string]any{}
	}
	return models.NewNote{EntityID: newLeadID, NoteType: noteType, Params: params}
}

func copyTask(t models.Task, newLeadID int64, now time.Time) models.NewTask {
	nt := models.NewTask{
		EntityID:          newLeadID,
		EntityType:        models.EntityTypeLeads,
		TaskTypeID:        t.TaskTypeID,
		Text:              t.Text,
		CompleteTill:      t.CompleteTill,
		ResponsibleUserID: t.ResponsibleUserID,
		IsCompleted:       t.IsCompleted,
	}
	if nt.TaskTypeID == 0 {
		nt.TaskTypeID = 1
	}
	if nt.CompleteTill == 0 {
		nt.CompleteTill = now.Add(24 * time.Hour).Unix()
	}
	// amoCRM отдаёт пустой result как [] или null, а принимает только объект
	if r := bytes.TrimSpace(t.Result); len(r) > 0 && r[0] == '{' {
		nt.Result = t.Result
	}
	return nt
}
