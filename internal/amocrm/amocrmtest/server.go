// Package amocrmtest — фейковый amoCRM API v4 на httptest для тестов клиента и сервисов.
package amocrmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"amoflow/internal/models"
)

const AccessToken = "test-access-token"

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	leads     map[int64]*models.Lead
	notes     map[int64][]models.Note
	tasks     map[int64][]models.Task
	pipelines []models.Pipeline
	nextID    int64

	requests      []string
	tokenRequests []map[string]any
	failures      map[string]int
	frozen        map[int64]bool
	rejectPatch   bool

	// NoContentOnEmpty: пустая страница отдаётся как 204, как делает настоящий amoCRM.
	NoContentOnEmpty bool
	// TokenExpiresIn is sent as expires_in by the token endpoint.
	TokenExpiresIn int64
}

func NewServer() *Server {
	s := &Server{
		leads:          map[int64]*models.Lead{},
		notes:          map[int64][]models.Note{},
		tasks:          map[int64][]models.Task{},
		failures:       map[string]int{},
		frozen:         map[int64]bool{},
		nextID:         1_000_000,
		TokenExpiresIn: 86400,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/access_token", s.token)
	mux.HandleFunc("GET /api/v4/leads", s.auth(s.listLeads))
	mux.HandleFunc("PATCH /api/v4/leads", s.auth(s.patchLeads))
	mux.HandleFunc("POST /api/v4/leads", s.auth(s.createLeads))
	mux.HandleFunc("GET /api/v4/leads/{id}", s.auth(s.getLeadOrPipelines))
	mux.HandleFunc("GET /api/v4/leads/{id}/{sub}", s.auth(s.leadSub))
	mux.HandleFunc("POST /api/v4/leads/{id}/notes", s.auth(s.createNotes))
	mux.HandleFunc("POST /api/v4/tasks", s.auth(s.createTasks))

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// --- наполнение и проверки ---

func (s *Server) AddLead(l models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.leads[l.ID] = &cp
}

func (s *Server) AddNote(leadID int64, n models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.EntityID = leadID
	s.notes[leadID] = append(s.notes[leadID], n)
}

func (s *Server) AddTask(leadID int64, t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.EntityID = leadID
	t.EntityType = models.EntityTypeLeads
	s.tasks[leadID] = append(s.tasks[leadID], t)
}

func (s *Server) AddPipeline(p models.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines = append(s.pipelines, p)
}

// Lead returns a copy of the stored lead.
func (s *Server) Lead(id int64) (models.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return models.Lead{}, false
	}
	return *l, true
}

// LeadsOnStage returns stored leads with the given status, ordered by id.
func (s *Server) LeadsOnStage(statusID int64) []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, id := range s.sortedIDs() {
		if s.leads[id].StatusID == statusID {
			out = append(out, *s.leads[id])
		}
	}
	return out
}

func (s *Server) Notes(leadID int64) []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Note(nil), s.notes[leadID]...)
}

func (s *Server) Tasks(leadID int64) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task(nil), s.tasks[leadID]...)
}

// SetStatus меняет этап сделки в обход API (имитация другого процесса).
func (s *Server) SetStatus(id, statusID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.StatusID = statusID
	}
}

// Freeze: PATCH по сделке принимается, но этап не меняется.
func (s *Server) Freeze(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen[id] = true
}

// RejectPatch makes PATCH /leads answer 200 with an empty _embedded.
func (s *Server) RejectPatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectPatch = true
}

// Fail makes every "METHOD /api/v4/path" request answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Requests returns "METHOD path?query" for every request seen so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests matched method and path exactly (query ignored).
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		r, _, _ = strings.Cut(r, "?")
		if r == method+" "+path {
			n++
		}
	}
	return n
}

func (s *Server) TokenRequests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.tokenRequests...)
}

// --- http ---

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		line := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			line += "?" + r.URL.RawQuery
		}
		s.requests = append(s.requests, line)
		status, fail := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]any{"title": http.StatusText(status), "status": status})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+AccessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"title": "Unauthorized", "status": 401})
			return
		}
		next(w, r)
	}
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "bad json"})
		return
	}
	s.mu.Lock()
	s.tokenRequests = append(s.tokenRequests, body)
	n := len(s.tokenRequests)
	expiresIn := s.TokenExpiresIn
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
		"access_token":  AccessToken,
		"refresh_token": fmt.Sprintf("refresh-%d", n),
	})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, _ := strconv.ParseInt(q.Get("filter[statuses][0][status_id]"), 10, 64)
	pipeline, _ := strconv.ParseInt(q.Get("filter[statuses][0][pipeline_id]"), 10, 64)

	s.mu.Lock()
	var items []any
	for _, id := range s.sortedIDs() {
		l := s.leads[id]
		if status != 0 && l.StatusID != status {
			continue
		}
		if pipeline != 0 && l.PipelineID != pipeline {
			continue
		}
		items = append(items, *l)
	}
	s.mu.Unlock()

	s.page(w, r, "leads", items)
}

func (s *Server) getLeadOrPipelines(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") == "pipelines" {
		s.mu.Lock()
		ps := append([]models.Pipeline(nil), s.pipelines...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"pipelines": ps}})
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "bad id"})
		return
	}
	l, ok := s.Lead(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) leadSub(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") == "pipelines" {
		id, _ := strconv.ParseInt(r.PathValue("sub"), 10, 64)
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, p := range s.pipelines {
			if p.ID == id {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"title": "Not Found", "status": 404})
		return
	}

	leadID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "bad id"})
		return
	}
	var items []any
	s.mu.Lock()
	switch sub := r.PathValue("sub"); sub {
	case "notes":
		for _, n := range s.notes[leadID] {
			items = append(items, n)
		}
	case "tasks":
		for _, t := range s.tasks[leadID] {
			items = append(items, t)
		}
	default:
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"title": "Not Found", "status": 404})
		return
	}
	s.mu.Unlock()
	s.page(w, r, r.PathValue("sub"), items)
}

func (s *Server) patchLeads(w http.ResponseWriter, r *http.Request) {
	var body []models.LeadStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "body must be an array"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, u := range body {
		l, ok := s.leads[u.ID]
		if !ok || s.rejectPatch {
			continue
		}
		if !s.frozen[u.ID] {
			l.StatusID = u.StatusID
		}
		l.UpdatedAt = u.UpdatedAt
		out = append(out, map[string]any{"id": u.ID, "updated_at": u.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"leads": out}})
}

func (s *Server) createLeads(w http.ResponseWriter, r *http.Request) {
	var body []models.NewLead
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "body must be an array"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, nl := range body {
		s.nextID++
		price := nl.Price
		l := &models.Lead{
			ID:                 s.nextID,
			Name:               nl.Name,
			Price:              &price,
			StatusID:           nl.StatusID,
			PipelineID:         nl.PipelineID,
			CustomFieldsValues: nl.CustomFieldsValues,
			Embedded:           nl.Embedded,
		}
		s.leads[l.ID] = l
		out = append(out, map[string]any{"id": l.ID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"leads": out}})
}

func (s *Server) createNotes(w http.ResponseWriter, r *http.Request) {
	leadID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "bad id"})
		return
	}
	var body []models.NewNote
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "body must be an array"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, nn := range body {
		s.nextID++
		s.notes[leadID] = append(s.notes[leadID], models.Note{
			ID: s.nextID, EntityID: leadID, NoteType: nn.NoteType, Params: nn.Params,
		})
		out = append(out, map[string]any{"id": s.nextID, "entity_id": leadID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"notes": out}})
}

func (s *Server) createTasks(w http.ResponseWriter, r *http.Request) {
	var body []models.NewTask
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"hint": "body must be an array"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, nt := range body {
		s.nextID++
		s.tasks[nt.EntityID] = append(s.tasks[nt.EntityID], models.Task{
			ID:                s.nextID,
			EntityID:          nt.EntityID,
			EntityType:        nt.EntityType,
			TaskTypeID:        nt.TaskTypeID,
			Text:              nt.Text,
			CompleteTill:      nt.CompleteTill,
			ResponsibleUserID: nt.ResponsibleUserID,
			IsCompleted:       nt.IsCompleted,
			Result:            nt.Result,
		})
		out = append(out, map[string]any{"id": s.nextID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"tasks": out}})
}

// page отдаёт срез items по page/limit в конверте {_embedded:{key:[...]}}.
func (s *Server) page(w http.ResponseWriter, r *http.Request, key string, items []any) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	chunk := []any{}
	if start < len(items) {
		end := min(start+limit, len(items))
		chunk = items[start:end]
	}
	if len(chunk) == 0 && s.NoContentOnEmpty {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_page":     page,
		"_embedded": map[string]any{key: chunk},
	})
}

func (s *Server) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.leads))
	for id := range s.leads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
