package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"amoflow/internal/models"
)

type Action string

const (
	ActionMove Action = "move-leads"
	ActionCopy Action = "copy-leads"
	ActionAll  Action = "all"
)

// ParseAction принимает и короткие формы: move, copy.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "move", "move-leads":
		return ActionMove, nil
	case "copy", "copy-leads":
		return ActionCopy, nil
	case "all":
		return ActionAll, nil
	}
	return "", fmt.Errorf("unknown action %q (expected move-leads, copy-leads or all)", s)
}

// Runner запускает move/copy, штампует run_id и рассылает уведомления.
type Runner struct {
	Move     *MoveLeadsService
	Copy     *CopyLeadsService
	Notifier Notifier
	Log      *log.Logger
	Debug    bool
	Now      func() time.Time
}

func NewRunner(move *MoveLeadsService, cp *CopyLeadsService, notifier Notifier, logger *log.Logger) *Runner {
	return &Runner{Move: move, Copy: cp, Notifier: notifier, Log: logger, Now: time.Now}
}

// Run выполняет действие. Для all сначала копирование, затем перенос.
func (r *Runner) Run(ctx context.Context, action Action, o models.ParameterOverrides) (models.Response, RunSummary) {
	sum := RunSummary{RunID: uuid.NewString(), Action: action, StartedAt: r.Now()}
	logger := r.Log.WithFields(log.Fields{"run_id": sum.RunID, "action": action})
	logger.Info("[run] start")

	var resp models.Response
	switch action {
	case ActionMove:
		resp = r.handle(ctx, ActionMove, o, &sum)
	case ActionCopy:
		resp = r.handle(ctx, ActionCopy, o, &sum)
	case ActionAll:
		cp := r.handle(ctx, ActionCopy, o, &sum)
		mv := r.handle(ctx, ActionMove, o, &sum)
		msg := fmt.Sprintf("copy: %s; move: %s", cp.Message, mv.Message)
		resp = models.NewResponse(cp.Success && mv.Success, msg, map[string]any{
			"run_id": sum.RunID,
			"copy":   cp,
			"move":   mv,
		}, r.Now())
	default:
		resp = models.NewResponse(false, fmt.Sprintf("unknown action %q", action), nil, r.Now())
	}
	sum.FinishedAt = r.Now()

	logger.WithField("success", resp.Success).Info("[run] done")
	if r.Notifier != nil && len(sum.Results) > 0 {
		if err := r.Notifier.Notify(ctx, sum); err != nil {
			logger.WithError(err).Error("[run] уведомление не отправлено")
		}
	}
	return resp, sum
}

func (r *Runner) handle(ctx context.Context, action Action, o models.ParameterOverrides, sum *RunSummary) (resp models.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = PanicResponse(rec, r.Debug, r.Now())
			r.Log.WithField("run_id", sum.RunID).Errorf("[run] panic in %s: %v\n%s", action, rec, debug.Stack())
		}
		sum.Results = append(sum.Results, ActionResult{Action: action, Response: resp})
	}()

	if action == ActionMove {
		resp = r.Move.Handle(ctx, o)
	} else {
		resp = r.Copy.Handle(ctx, o)
	}
	if st, ok := resp.Data.(runStamped); ok {
		st.setRunID(sum.RunID)
	}
	return resp
}
