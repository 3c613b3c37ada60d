package amocrm_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amoflow/internal/amocrm"
	"amoflow/internal/amocrm/amocrmtest"
	"amoflow/internal/models"
	"amoflow/internal/throttle"
)

func price(v float64) *float64 { return &v }

func seedLeads(s *amocrmtest.Server, n int, pipelineID, statusID int64) {
	for i := 1; i <= n; i++ {
		s.AddLead(models.Lead{
			ID:         int64(i),
			Name:       fmt.Sprintf("lead %d", i),
			Price:      price(float64(i)),
			PipelineID: pipelineID,
			StatusID:   statusID,
		})
	}
}

func TestGetAllPagination(t *testing.T) {
	for _, n := range []int{0, 1, 249, 250, 251, 500, 777} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			srv := amocrmtest.NewServer()
			defer srv.Close()
			seedLeads(srv, n, 10, 20)

			rec := &throttle.Recorder{}
			c := amocrmtest.NewClient(t, srv, amocrm.WithPacer(rec))

			leads, err := c.ListLeads(context.Background(), 10, 20, 0)
			require.NoError(t, err)
			require.Len(t, leads, n)

			seen := map[int64]bool{}
			for _, l := range leads {
				assert.False(t, seen[l.ID], "duplicate lead %d", l.ID)
				seen[l.ID] = true
			}

			pages := (n+amocrm.DefaultPageLimit-1)/amocrm.DefaultPageLimit + 1 // плюс пустая страница
			assert.Equal(t, pages, srv.Count(http.MethodGet, "/api/v4/leads"))
			assert.Equal(t, pages-1, rec.Count(amocrm.DefaultPageDelay))
		})
	}
}

func TestGetAllStopsOnNoContent(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.NoContentOnEmpty = true
	seedLeads(srv, 300, 10, 20)

	c := amocrmtest.NewClient(t, srv)
	leads, err := c.ListLeads(context.Background(), 10, 20, 0)
	require.NoError(t, err)
	assert.Len(t, leads, 300)
	assert.Equal(t, 3, srv.Count(http.MethodGet, "/api/v4/leads"))
}

func TestListLeadsSendsFilters(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	seedLeads(srv, 2, 10, 20)
	srv.AddLead(models.Lead{ID: 99, PipelineID: 10, StatusID: 21})

	c := amocrmtest.NewClient(t, srv, amocrm.WithPaging(50, 0))
	leads, err := c.ListLeads(context.Background(), 10, 20, 0)
	require.NoError(t, err)
	assert.Len(t, leads, 2)

	reqs := srv.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0], "limit=50")
	assert.Contains(t, reqs[0], "with=contacts")
	assert.Contains(t, reqs[0], "filter%5Bstatuses%5D%5B0%5D%5Bstatus_id%5D=20")
}

func TestListLeadsPerCallLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantQuery string
		wantPages int
	}{
		{"explicit", 10, "limit=10", 3},
		{"client default", 0, "limit=250", 1},
		{"capped", 1000, "limit=250", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := amocrmtest.NewServer()
			defer srv.Close()
			seedLeads(srv, 25, 10, 20)

			c := amocrmtest.NewClient(t, srv)
			leads, err := c.ListLeads(context.Background(), 10, 20, tt.limit)
			require.NoError(t, err)
			assert.Len(t, leads, 25)

			reqs := srv.Requests()
			require.Len(t, reqs, tt.wantPages+1)
			for _, r := range reqs {
				assert.Contains(t, r, tt.wantQuery)
			}
		})
	}
}

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		msg    string
	}{
		{301, "Moved permanently"},
		{400, "Bad request"},
		{401, "Unauthorized"},
		{403, "Forbidden"},
		{404, "Not found"},
		{500, "Internal server error"},
		{502, "Bad gateway"},
		{503, "Service unavailable"},
		{418, "undefined error"},
		{429, "undefined error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.msg, amocrm.StatusMessage(tt.status))
		})
	}

	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.Fail(http.MethodGet, "/api/v4/leads/5", http.StatusForbidden)

	c := amocrmtest.NewClient(t, srv)
	_, err := c.GetLead(context.Background(), 5)

	var apiErr *amocrm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)
	assert.Equal(t, "Forbidden", apiErr.Message)
	assert.True(t, amocrm.IsStatus(err, 403))
}

func TestGetAllPropagatesErrors(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.Fail(http.MethodGet, "/api/v4/leads", http.StatusBadGateway)

	c := amocrmtest.NewClient(t, srv)
	leads, err := c.ListLeads(context.Background(), 1, 2, 0)
	assert.Nil(t, leads)
	assert.True(t, amocrm.IsStatus(err, 502))
}

func TestGetLeadNoContent(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()

	c := amocrmtest.NewClient(t, srv)
	_, err := c.GetLead(context.Background(), 404)
	assert.ErrorIs(t, err, amocrm.ErrNoContent)
}

func TestUpdateLeadStatus(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddLead(models.Lead{ID: 7, PipelineID: 1, StatusID: 2})

	c := amocrmtest.NewClient(t, srv)
	require.NoError(t, c.UpdateLeadStatus(context.Background(), 7, 3))

	l, _ := srv.Lead(7)
	assert.Equal(t, int64(3), l.StatusID)

	srv.RejectPatch()
	err := c.UpdateLeadStatus(context.Background(), 7, 4)
	assert.ErrorIs(t, err, amocrm.ErrNotAccepted)
}

func TestCreateLeadNotesTasks(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	c := amocrmtest.NewClient(t, srv)
	ctx := context.Background()

	id, err := c.CreateLead(ctx, models.NewLead{Name: "x (copy)", Price: 10, StatusID: 3, PipelineID: 1})
	require.NoError(t, err)
	require.NotZero(t, id)

	noteID, err := c.CreateLeadNote(ctx, id, models.NewNote{EntityID: id, NoteType: "common", Params: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.NotZero(t, noteID)

	taskID, err := c.CreateTask(ctx, models.NewTask{EntityID: id, EntityType: models.EntityTypeLeads, TaskTypeID: 1, Text: "call", CompleteTill: 1})
	require.NoError(t, err)
	assert.NotZero(t, taskID)

	notes, err := c.ListLeadNotes(ctx, id)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "hi", notes[0].Text())

	tasks, err := c.ListLeadTasks(ctx, id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "call", tasks[0].Text)
}

func TestPipelines(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.AddPipeline(models.Pipeline{ID: 1, Name: "Продажи", Embedded: &models.PipelineEmbedded{
		Statuses: []models.Stage{{ID: 11, Name: "Заявка", PipelineID: 1}},
	}})

	c := amocrmtest.NewClient(t, srv)
	ps, err := c.ListPipelines(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Продажи", ps[0].Name)

	p, err := c.GetPipeline(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, p.Stages(), 1)
	assert.Equal(t, "Заявка", p.Stages()[0].Name)

	_, err = c.GetPipeline(context.Background(), 2)
	assert.True(t, amocrm.IsStatus(err, 404))
}

func TestDelete(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	srv.Fail(http.MethodDelete, "/api/v4/leads/1", http.StatusNoContent)

	c := amocrmtest.NewClient(t, srv)
	require.NoError(t, c.Delete(context.Background(), "leads", 1))
	assert.Equal(t, 1, srv.Count(http.MethodDelete, "/api/v4/leads/1"))
}

func TestContextCancelledBetweenPages(t *testing.T) {
	srv := amocrmtest.NewServer()
	defer srv.Close()
	seedLeads(srv, 300, 1, 2)

	c := amocrmtest.NewClient(t, srv, amocrm.WithPacer(throttle.SleepPacer{}), amocrm.WithPaging(250, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListLeads(ctx, 1, 2, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, srv.Count(http.MethodGet, "/api/v4/leads"))
}
