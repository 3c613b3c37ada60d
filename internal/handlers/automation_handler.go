package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"amoflow/internal/authz"
	"amoflow/internal/models"
	"amoflow/internal/services"
)

type AutomationHandler struct {
	Runner *services.Runner
	Stages *services.StageService
	Params models.ProcessingParameters
	Log    *log.Logger
	Now    func() time.Time
}

func NewAutomationHandler(runner *services.Runner, stages *services.StageService, params models.ProcessingParameters, logger *log.Logger) *AutomationHandler {
	return &AutomationHandler{Runner: runner, Stages: stages, Params: params, Log: logger, Now: time.Now}
}

// Run — GET /api?action=move-leads|copy-leads|all. Без action выполняется перенос.
// Итог обработки всегда 200: успех или неудача описаны в конверте.
func (h *AutomationHandler) Run(c *gin.Context) {
	action, err := services.ParseAction(c.DefaultQuery("action", string(services.ActionMove)))
	if err != nil {
		badRequest(c, err, h.Now())
		return
	}
	overrides, err := parseOverrides(c)
	if err != nil {
		badRequest(c, err, h.Now())
		return
	}

	user, _ := currentUser(c)
	h.Log.WithFields(log.Fields{"action": action, "user": user}).Info("[http] run requested")

	resp, _ := h.Runner.Run(c.Request.Context(), action, overrides)
	c.JSON(http.StatusOK, resp)
}

// Config отдаёт параметры обработки (без секретов) с учётом переопределений из query.
func (h *AutomationHandler) Config(c *gin.Context) {
	overrides, err := parseOverrides(c)
	if err != nil {
		badRequest(c, err, h.Now())
		return
	}
	_, role := currentUser(c)
	c.JSON(http.StatusOK, models.NewResponse(true, "configuration", gin.H{
		"parameters": overrides.Apply(h.Params),
		"role":       role,
		"can_run":    authz.CanRun(role),
	}, h.Now()))
}

// ListStages — GET /api/stages?pipeline_id=. Этапы воронки с подсказкой ключа конфига.
func (h *AutomationHandler) ListStages(c *gin.Context) {
	id, err := queryInt(c, "pipeline_id")
	if err != nil {
		badRequest(c, err, h.Now())
		return
	}
	pipelineID := h.Params.PipelineID
	if id != nil {
		pipelineID = *id
	}

	rep, err := h.Stages.FindStages(c.Request.Context(), pipelineID)
	if err != nil {
		h.Log.WithError(err).WithField("pipeline_id", pipelineID).Error("[http] failed to load stages")
		c.JSON(http.StatusOK, models.NewResponse(false, "failed to load stages: "+err.Error(), nil, h.Now()))
		return
	}
	c.JSON(http.StatusOK, models.NewResponse(true, "stages loaded", rep, h.Now()))
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
