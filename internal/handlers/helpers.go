package handlers

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"amoflow/internal/config"
	"amoflow/internal/middleware"
	"amoflow/internal/models"
	"amoflow/internal/services"
)

func currentUser(c *gin.Context) (username, role string) {
	return c.GetString(middleware.CtxUsername), c.GetString(middleware.CtxRole)
}

func queryInt(c *gin.Context, key string) (*int64, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil, &config.FieldError{Field: key, Reason: "must be a positive integer"}
	}
	return &n, nil
}

func queryFloat(c *gin.Context, key string) (*float64, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return nil, &config.FieldError{Field: key, Reason: "must be a non-negative number"}
	}
	return &n, nil
}

// parseOverrides читает переопределения параметров из query string.
func parseOverrides(c *gin.Context) (models.ParameterOverrides, error) {
	var o models.ParameterOverrides
	var err error

	ints := []struct {
		key string
		dst **int64
	}{
		{"pipeline_id", &o.PipelineID},
		{"application_stage_id", &o.ApplicationStageID},
		{"waiting_stage_id", &o.WaitingStageID},
		{"client_confirmed_stage_id", &o.ClientConfirmedStageID},
	}
	for _, f := range ints {
		if *f.dst, err = queryInt(c, f.key); err != nil {
			return o, err
		}
	}
	if o.BudgetThreshold, err = queryFloat(c, "budget_threshold"); err != nil {
		return o, err
	}
	if o.CopyBudgetValue, err = queryFloat(c, "copy_budget_value"); err != nil {
		return o, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return o, err
	}
	if limit != nil {
		l := int(*limit)
		o.Limit = &l
	}
	return o, nil
}

// Guard — последний рубеж: паника в обработчике превращается в конверт с success=false.
func Guard(logger *log.Logger, debugMode bool, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("[http] panic on %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, rec, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, services.PanicResponse(rec, debugMode, now()))
			}
		}()
		c.Next()
	}
}

func badRequest(c *gin.Context, err error, now time.Time) {
	c.JSON(http.StatusBadRequest, models.NewResponse(false, err.Error(), nil, now))
}
