package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amoflow/internal/models"
	"amoflow/internal/pdf"
)

// RunSummary — результат запуска, который уходит в уведомления.
type RunSummary struct {
	RunID      string
	Action     Action
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ActionResult
}

type ActionResult struct {
	Action   Action
	Response models.Response
}

// Success reports whether every action of the run succeeded.
func (s RunSummary) Success() bool {
	for _, r := range s.Results {
		if !r.Response.Success {
			return false
		}
	}
	return len(s.Results) > 0
}

type Notifier interface {
	Notify(ctx context.Context, summary RunSummary) error
}

// MultiNotifier рассылает во все каналы и собирает ошибки.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, summary RunSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SummaryText — короткий текст для мессенджера/письма.
func SummaryText(s RunSummary) string {
	var b strings.Builder
	icon := "✅"
	if !s.Success() {
		icon = "⚠️"
	}
	fmt.Fprintf(&b, "%s amoflow: %s\n", icon, s.Action)
	fmt.Fprintf(&b, "run: %s\n", s.RunID)
	for _, r := range s.Results {
		fmt.Fprintf(&b, "\n[%s] %s\n", r.Action, r.Response.Message)
		switch rep := r.Response.Data.(type) {
		case *MoveReport:
			fmt.Fprintf(&b, "на этапе: %d, подходит: %d, перенесено: %d, ошибок: %d\n",
				rep.TotalLeads, rep.FilteredLeads, rep.SuccessfullyMoved, rep.FailedToMove)
		case *CopyReport:
			fmt.Fprintf(&b, "на этапе: %d, подходит: %d, скопировано: %d, ошибок: %d\n",
				rep.TotalLeads, rep.FilteredLeads, rep.SuccessfullyCopied, rep.FailedToCopy)
			if rep.PipelineName != "" {
				fmt.Fprintf(&b, "воронка: %s\n", rep.PipelineName)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildReport converts a run summary into the PDF report model.
func BuildReport(s RunSummary) pdf.RunReport {
	r := pdf.RunReport{
		RunID:      s.RunID,
		Action:     string(s.Action),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	for _, res := range s.Results {
		sec := pdf.Section{
			Title:   string(res.Action),
			Success: res.Response.Success,
			Message: res.Response.Message,
		}
		switch rep := res.Response.Data.(type) {
		case *MoveReport:
			sec.Fields = []pdf.Field{
				{Key: "total_leads", Value: fmt.Sprint(rep.TotalLeads)},
				{Key: "filtered_leads", Value: fmt.Sprint(rep.FilteredLeads)},
				{Key: "successfully_moved", Value: fmt.Sprint(rep.SuccessfullyMoved)},
				{Key: "failed_to_move", Value: fmt.Sprint(rep.FailedToMove)},
				{Key: "budget_threshold", Value: fmt.Sprintf("%g", rep.Parameters.BudgetThreshold)},
			}
			for _, m := range rep.SuccessLeads {
				sec.Items = append(sec.Items, fmt.Sprintf("#%d %s (%g): %d -> %d", m.ID, m.Name, m.Budget, m.OldStage, m.NewStage))
			}
			for _, f := range rep.FailedLeads {
				sec.Items = append(sec.Items, fmt.Sprintf("#%d %s: %s", f.ID, f.Name, f.Error))
			}
		case *CopyReport:
			sec.Fields = []pdf.Field{
				{Key: "pipeline_name", Value: rep.PipelineName},
				{Key: "total_leads", Value: fmt.Sprint(rep.TotalLeads)},
				{Key: "filtered_leads", Value: fmt.Sprint(rep.FilteredLeads)},
				{Key: "successfully_copied", Value: fmt.Sprint(rep.SuccessfullyCopied)},
				{Key: "failed_to_copy", Value: fmt.Sprint(rep.FailedToCopy)},
				{Key: "copy_budget_value", Value: fmt.Sprintf("%g", rep.Parameters.CopyBudgetValue)},
			}
			for _, c := range rep.SuccessCopies {
				sec.Items = append(sec.Items, fmt.Sprintf("#%d -> #%d %s (notes %d, tasks %d)",
					c.OriginalLeadID, c.NewLeadID, c.Name, c.NotesCopied, c.TasksCopied))
			}
			for _, f := range rep.FailedCopies {
				sec.Items = append(sec.Items, fmt.Sprintf("#%d %s: %s", f.OriginalLeadID, f.Name, f.Error))
			}
		}
		r.Sections = append(r.Sections, sec)
	}
	return r
}
