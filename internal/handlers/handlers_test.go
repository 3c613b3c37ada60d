package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"amoflow/internal/amocrm/amocrmtest"
	"amoflow/internal/config"
	"amoflow/internal/handlers"
	"amoflow/internal/models"
	"amoflow/internal/routes"
	"amoflow/internal/services"
	"amoflow/internal/throttle"
)

const (
	pipelineID   = 100
	stageApp     = 1
	stageWait    = 2
	stageConfirm = 3
)

var secret = []byte("console-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func params() models.ProcessingParameters {
	return models.ProcessingParameters{
		PipelineID:             pipelineID,
		ApplicationStageID:     stageApp,
		WaitingStageID:         stageWait,
		ClientConfirmedStageID: stageConfirm,
		BudgetThreshold:        5000,
		CopyBudgetValue:        4999,
		Limit:                  250,
	}
}

func lead(id, status int64, price float64) models.Lead {
	return models.Lead{ID: id, Name: "Сделка", Price: &price, PipelineID: pipelineID, StatusID: status}
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newRouter(t *testing.T, srv *amocrmtest.Server, console config.ConsoleConfig) *gin.Engine {
	t.Helper()
	client := amocrmtest.NewClient(t, srv)
	logger := amocrmtest.QuietLogger()
	th := config.ThrottleConfig{}

	move := services.NewMoveLeadsService(client, params(), th, throttle.NoopPacer{}, logger)
	cp := services.NewCopyLeadsService(client, params(), th, throttle.NoopPacer{}, logger)
	runner := services.NewRunner(move, cp, nil, logger)

	if console.TokenTTL == 0 {
		console.TokenTTL = time.Hour
	}
	r := gin.New()
	return routes.SetupRoutes(r,
		handlers.NewAuthHandler(console, secret, logger),
		handlers.NewAutomationHandler(runner, services.NewStageService(client), params(), logger),
		routes.Options{JWTSecret: secret, AuthEnabled: console.AuthEnabled(), Log: logger},
	)
}

func get(t *testing.T, r http.Handler, path, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRunMoveAction(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddLead(lead(1, stageApp, 6000))
	srv.AddLead(lead(2, stageApp, 5000))

	r := newRouter(t, srv, config.ConsoleConfig{})
	w, env := get(t, r, "/api?action=move-leads", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success, env.Message)
	var data struct {
		TotalLeads int    `json:"total_leads"`
		MovedCount int    `json:"moved_count"`
		RunID      string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.TotalLeads)
	assert.Equal(t, 1, data.MovedCount)
	assert.NotEmpty(t, data.RunID)

	l, _ := srv.Lead(1)
	assert.Equal(t, int64(stageWait), l.StatusID)
}

func TestRunDefaultsToMove(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()

	r := newRouter(t, srv, config.ConsoleConfig{})
	w, env := get(t, r, "/api", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "no leads found on stage 1")
}

func TestRunAllReturnsBothEnvelopes(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddLead(lead(1, stageApp, 6000))
	srv.AddLead(lead(2, stageConfirm, 4999))
	srv.AddPipeline(models.Pipeline{ID: pipelineID, Name: "Продажи"})

	r := newRouter(t, srv, config.ConsoleConfig{})
	w, env := get(t, r, "/api?action=all", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success, env.Message)
	var data struct {
		RunID string   `json:"run_id"`
		Copy  envelope `json:"copy"`
		Move  envelope `json:"move"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.RunID)
	assert.True(t, data.Copy.Success, data.Copy.Message)
	assert.True(t, data.Move.Success, data.Move.Message)
	// копия создана на целевом этапе и переноса не затронула (бюджет 4999 < порога)
	assert.Len(t, srv.LeadsOnStage(stageWait), 2)
}

func TestRunOverrides(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddLead(lead(1, stageApp, 6000))

	r := newRouter(t, srv, config.ConsoleConfig{})

	t.Run("threshold above budget", func(t *testing.T) {
		_, env := get(t, r, "/api?action=move&budget_threshold=7000", "")
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "no leads with budget above 7000")
	})
	t.Run("page limit", func(t *testing.T) {
		before := len(srv.Requests())
		_, env := get(t, r, "/api?action=move&limit=5&budget_threshold=7000", "")
		assert.False(t, env.Success)
		reqs := srv.Requests()[before:]
		require.NotEmpty(t, reqs)
		assert.Contains(t, reqs[0], "limit=5&")
	})
	t.Run("same stages", func(t *testing.T) {
		before := len(srv.Requests())
		_, env := get(t, r, "/api?action=move&waiting_stage_id=1", "")
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "waiting_stage_id")
		assert.Equal(t, before, len(srv.Requests()))
	})
}

func TestRunBadRequest(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	r := newRouter(t, srv, config.ConsoleConfig{})

	for _, path := range []string{
		"/api?action=delete-everything",
		"/api?action=move&pipeline_id=abc",
		"/api?action=move&budget_threshold=-1",
		"/api?action=copy&limit=0",
	} {
		w, env := get(t, r, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.False(t, env.Success, path)
		assert.NotEmpty(t, env.Timestamp, path)
	}
	assert.Empty(t, srv.Requests())
}

func TestConfigEndpoint(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	r := newRouter(t, srv, config.ConsoleConfig{})

	w, env := get(t, r, "/api/config?budget_threshold=100", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	var data struct {
		Parameters models.ProcessingParameters `json:"parameters"`
		CanRun     bool                        `json:"can_run"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 100.0, data.Parameters.BudgetThreshold)
	assert.Equal(t, int64(stageConfirm), data.Parameters.ClientConfirmedStageID)
	assert.True(t, data.CanRun)
	assert.NotContains(t, w.Body.String(), "client-secret")
}

func TestStagesEndpoint(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddPipeline(models.Pipeline{ID: 7, Name: "Воронка", Embedded: &models.PipelineEmbedded{
		Statuses: []models.Stage{
			{ID: 11, Name: "Новая заявка"},
			{ID: 12, Name: "Ожидание оплаты"},
		},
	}})
	r := newRouter(t, srv, config.ConsoleConfig{})

	_, env := get(t, r, "/api/stages?pipeline_id=7", "")
	require.True(t, env.Success, env.Message)
	var rep services.StageReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, "Воронка", rep.PipelineName)
	require.Len(t, rep.Stages, 2)
	assert.Equal(t, "application_stage_id", rep.Stages[0].SuggestedKey)
	assert.Equal(t, "waiting_stage_id", rep.Stages[1].SuggestedKey)

	_, env = get(t, r, "/api/stages?pipeline_id=999", "")
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "failed to load stages")
}

func TestLoginAndRoles(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	console := config.ConsoleConfig{
		Username:     "admin",
		PasswordHash: hash(t, "s3cret"),
		Users:        []config.ConsoleUser{{Username: "olga", PasswordHash: hash(t, "view"), Role: "viewer"}},
	}
	r := newRouter(t, srv, console)

	login := func(user, pw string) (*httptest.ResponseRecorder, models.LoginResponse) {
		body := `{"username":"` + user + `","password":"` + pw + `"}`
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var out models.LoginResponse
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		return w, out
	}

	w, _ := login("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = login("nobody", "s3cret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, admin := login("admin", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, admin.AccessToken)
	assert.Greater(t, admin.ExpiresAt, time.Now().Unix())

	_, viewer := login("olga", "view")
	require.NotEmpty(t, viewer.AccessToken)

	w, _ = get(t, r, "/api?action=move", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = get(t, r, "/api?action=move", viewer.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := get(t, r, "/api/config", viewer.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"can_run":false`)

	w, _ = get(t, r, "/api?action=move", admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, r, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardRecoversPanics(t *testing.T) {
	logger := amocrmtest.QuietLogger()
	r := gin.New()
	r.Use(handlers.Guard(logger, false, time.Now))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w, env := get(t, r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "kaboom")
	assert.NotContains(t, string(env.Data), "file")

	r = gin.New()
	r.Use(handlers.Guard(logger, true, time.Now))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	_, env = get(t, r, "/boom", "")
	assert.Contains(t, string(env.Data), "handlers_test.go")
}
