package amocrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"amoflow/internal/models"
)

// embeddedIDs — ответ POST/PATCH: {"_embedded":{"<entity>":[{"id":..}]}}.
type embeddedIDs struct {
	Embedded map[string][]struct {
		ID int64 `json:"id"`
	} `json:"_embedded"`
}

func (e embeddedIDs) first(key string) (int64, bool) {
	items := e.Embedded[key]
	if len(items) == 0 || items[0].ID == 0 {
		return 0, false
	}
	return items[0].ID, true
}

func decodeAll[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ListLeads возвращает все сделки этапа statusID воронки pipelineID вместе с контактами.
// limit — размер страницы (не больше 250); 0 — размер страницы клиента.
func (c *Client) ListLeads(ctx context.Context, pipelineID, statusID int64, limit int) ([]models.Lead, error) {
	params := url.Values{}
	params.Set("with", "contacts")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(min(limit, DefaultPageLimit)))
	}
	params.Set("filter[statuses][0][pipeline_id]", strconv.FormatInt(pipelineID, 10))
	params.Set("filter[statuses][0][status_id]", strconv.FormatInt(statusID, 10))

	raw, err := c.GetAll(ctx, "leads", params)
	if err != nil {
		return nil, err
	}
	leads, err := decodeAll[models.Lead](raw)
	if err != nil {
		return nil, fmt.Errorf("amocrm: decode leads: %w", err)
	}
	return leads, nil
}

func (c *Client) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	params := url.Values{}
	params.Set("with", "contacts")

	var lead models.Lead
	status, err := c.Get(ctx, "leads", id, params, &lead)
	if err != nil {
		return nil, err
	}
	if status == 204 || lead.ID == 0 {
		return nil, fmt.Errorf("lead %d: %w", id, ErrNoContent)
	}
	return &lead, nil
}

// UpdateLeadStatus переводит сделку на этап statusID. ErrNotAccepted, если в ответе нет сделки.
func (c *Client) UpdateLeadStatus(ctx context.Context, id, statusID int64) error {
	body := []models.LeadStatusUpdate{{ID: id, StatusID: statusID, UpdatedAt: c.now().Unix()}}

	var resp embeddedIDs
	if _, err := c.Patch(ctx, "leads", body, &resp); err != nil {
		return err
	}
	if got, ok := resp.first("leads"); !ok || got != id {
		return fmt.Errorf("lead %d: %w", id, ErrNotAccepted)
	}
	return nil
}

// CreateLead returns the id of the created lead.
func (c *Client) CreateLead(ctx context.Context, lead models.NewLead) (int64, error) {
	var resp embeddedIDs
	if _, err := c.Post(ctx, "leads", []models.NewLead{lead}, &resp); err != nil {
		return 0, err
	}
	id, ok := resp.first("leads")
	if !ok {
		return 0, ErrNotAccepted
	}
	return id, nil
}

func (c *Client) ListLeadNotes(ctx context.Context, leadID int64) ([]models.Note, error) {
	raw, err := c.GetAll(ctx, fmt.Sprintf("leads/%d/notes", leadID), nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Note](raw)
}

func (c *Client) CreateLeadNote(ctx context.Context, leadID int64, note models.NewNote) (int64, error) {
	var resp embeddedIDs
	if _, err := c.Post(ctx, fmt.Sprintf("leads/%d/notes", leadID), []models.NewNote{note}, &resp); err != nil {
		return 0, err
	}
	id, ok := resp.first("notes")
	if !ok {
		return 0, ErrNotAccepted
	}
	return id, nil
}

func (c *Client) ListLeadTasks(ctx context.Context, leadID int64) ([]models.Task, error) {
	raw, err := c.GetAll(ctx, fmt.Sprintf("leads/%d/tasks", leadID), nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Task](raw)
}

func (c *Client) CreateTask(ctx context.Context, task models.NewTask) (int64, error) {
	var resp embeddedIDs
	if _, err := c.Post(ctx, "tasks", []models.NewTask{task}, &resp); err != nil {
		return 0, err
	}
	id, ok := resp.first("tasks")
	if !ok {
		return 0, ErrNotAccepted
	}
	return id, nil
}

func (c *Client) ListPipelines(ctx context.Context) ([]models.Pipeline, error) {
	var resp struct {
		Embedded struct {
			Pipelines []models.Pipeline `json:"pipelines"`
		} `json:"_embedded"`
	}
	if _, err := c.Get(ctx, "leads/pipelines", 0, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Embedded.Pipelines, nil
}

// GetPipeline returns one pipeline with its statuses embedded.
func (c *Client) GetPipeline(ctx context.Context, id int64) (*models.Pipeline, error) {
	var p models.Pipeline
	status, err := c.Get(ctx, "leads/pipelines", id, nil, &p)
	if err != nil {
		return nil, err
	}
	if status == 204 || p.ID == 0 {
		return nil, fmt.Errorf("pipeline %d: %w", id, ErrNoContent)
	}
	return &p, nil
}
