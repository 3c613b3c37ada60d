package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"amoflow/internal/amocrm"
	"amoflow/internal/config"
	"amoflow/internal/models"
)

// fakeCRM — LeadGateway в памяти с подсчётом вызовов и инъекцией ошибок.
type fakeCRM struct {
	mu sync.Mutex

	leads     map[int64]*models.Lead
	notes     map[int64][]models.Note
	tasks     map[int64][]models.Task
	pipelines []models.Pipeline
	nextID    int64

	// listExtra отдаётся ListLeads без фильтрации (устаревший серверный фильтр)
	listExtra  []models.Lead
	listLimits []int
	frozen     map[int64]bool

	listErr      error
	getErr       map[int64]error
	patchErr     map[int64]error
	createErr    error
	notesErr     error
	tasksErr     error
	noteErr      error
	taskErr      error
	pipelinesErr error

	// onGet вызывается перед каждым GetLead с номером вызова для этой сделки
	onGet func(f *fakeCRM, id int64, n int)
	gets  map[int64]int

	calls        []string
	created      []models.NewLead
	createdNotes []models.NewNote
	createdTasks []models.NewTask
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		leads:    map[int64]*models.Lead{},
		notes:    map[int64][]models.Note{},
		tasks:    map[int64][]models.Task{},
		frozen:   map[int64]bool{},
		getErr:   map[int64]error{},
		patchErr: map[int64]error{},
		gets:     map[int64]int{},
		nextID:   9000,
	}
}

func (f *fakeCRM) add(l models.Lead) {
	cp := l
	f.leads[l.ID] = &cp
}

func (f *fakeCRM) call(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCRM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCRM) status(id int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leads[id].StatusID
}

func (f *fakeCRM) ListLeads(_ context.Context, pipelineID, statusID int64, limit int) ([]models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("list %d/%d", pipelineID, statusID)
	f.listLimits = append(f.listLimits, limit)
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]int64, 0, len(f.leads))
	for id := range f.leads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.Lead
	for _, id := range ids {
		l := f.leads[id]
		if l.StatusID == statusID && l.PipelineID == pipelineID {
			out = append(out, *l)
		}
	}
	return append(out, f.listExtra...), nil
}

func (f *fakeCRM) GetLead(_ context.Context, id int64) (*models.Lead, error) {
	f.mu.Lock()
	f.gets[id]++
	n := f.gets[id]
	hook := f.onGet
	f.mu.Unlock()
	if hook != nil {
		hook(f, id, n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("get %d", id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	l, ok := f.leads[id]
	if !ok {
		return nil, amocrm.ErrNoContent
	}
	cp := *l
	return &cp, nil
}

func (f *fakeCRM) UpdateLeadStatus(_ context.Context, id, statusID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("patch %d->%d", id, statusID)
	if err := f.patchErr[id]; err != nil {
		return err
	}
	if !f.frozen[id] {
		f.leads[id].StatusID = statusID
	}
	return nil
}

func (f *fakeCRM) CreateLead(_ context.Context, lead models.NewLead) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("create lead %q", lead.Name)
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, lead)
	price := lead.Price
	f.leads[f.nextID] = &models.Lead{ID: f.nextID, Name: lead.Name, Price: &price, StatusID: lead.StatusID, PipelineID: lead.PipelineID}
	return f.nextID, nil
}

func (f *fakeCRM) ListLeadNotes(_ context.Context, leadID int64) ([]models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("list notes %d", leadID)
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	return f.notes[leadID], nil
}

func (f *fakeCRM) CreateLeadNote(_ context.Context, leadID int64, note models.NewNote) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("create note %d", leadID)
	if f.noteErr != nil {
		return 0, f.noteErr
	}
	f.nextID++
	f.createdNotes = append(f.createdNotes, note)
	return f.nextID, nil
}

func (f *fakeCRM) ListLeadTasks(_ context.Context, leadID int64) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("list tasks %d", leadID)
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	return f.tasks[leadID], nil
}

func (f *fakeCRM) CreateTask(_ context.Context, task models.NewTask) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("create task %d", task.EntityID)
	if f.taskErr != nil {
		return 0, f.taskErr
	}
	f.nextID++
	f.createdTasks = append(f.createdTasks, task)
	return f.nextID, nil
}

func (f *fakeCRM) ListPipelines(context.Context) ([]models.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("list pipelines")
	return f.pipelines, f.pipelinesErr
}

func (f *fakeCRM) GetPipeline(_ context.Context, id int64) (*models.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("get pipeline %d", id)
	for _, p := range f.pipelines {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, &amocrm.APIError{Status: 404, Message: amocrm.StatusMessage(404)}
}

// --- общие помощники тестов ---

const (
	pipelineID   = 100
	stageApp     = 1
	stageWait    = 2
	stageConfirm = 3
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func testParams() models.ProcessingParameters {
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

func testThrottle() config.ThrottleConfig {
	return config.ThrottleConfig{
		PageDelay:   250 * time.Millisecond,
		MoveDelay:   300 * time.Millisecond,
		VerifyDelay: 500 * time.Millisecond,
		CopyDelay:   501 * time.Millisecond, // отличается от VerifyDelay, чтобы считать раздельно
		ItemDelay:   100 * time.Millisecond,
	}
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func lead(id int64, status int64, price float64) models.Lead {
	p := price
	return models.Lead{ID: id, Name: fmt.Sprintf("Сделка %d", id), Price: &p, PipelineID: pipelineID, StatusID: status}
}
