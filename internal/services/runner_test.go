package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amoflow/internal/models"
	"amoflow/internal/throttle"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []RunSummary
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, s RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return n.err
}

func newTestRunner(crm *fakeCRM, n Notifier) *Runner {
	r := NewRunner(newMoveService(crm, throttle.NoopPacer{}), newCopyService(crm, throttle.NoopPacer{}), n, quietLogger())
	r.Now = func() time.Time { return fixedNow }
	return r
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"move": ActionMove, "move-leads": ActionMove, " COPY ": ActionCopy, "copy-leads": ActionCopy, "all": ActionAll,
	} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("delete")
	assert.Error(t, err)
}

func TestRunnerMoveStampsRunID(t *testing.T) {
	crm := newFakeCRM()
	crm.add(lead(1, stageApp, 6000))
	n := &recordingNotifier{}

	resp, sum := newTestRunner(crm, n).Run(context.Background(), ActionMove, models.ParameterOverrides{})
	require.True(t, resp.Success)
	rep := resp.Data.(*MoveReport)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, sum.RunID, rep.RunID)

	require.Len(t, n.summaries, 1)
	assert.Equal(t, ActionMove, n.summaries[0].Action)
	require.Len(t, n.summaries[0].Results, 1)
	assert.True(t, n.summaries[0].Success())
}

func TestRunnerAllRunsCopyThenMove(t *testing.T) {
	crm := newFakeCRM()
	crm.add(lead(1, stageApp, 6000))
	crm.add(lead(2, stageConfirm, 4999))

	resp, sum := newTestRunner(crm, nil).Run(context.Background(), ActionAll, models.ParameterOverrides{})
	require.True(t, resp.Success, resp.Message)

	data := resp.Data.(map[string]any)
	assert.Contains(t, data, "copy")
	assert.Contains(t, data, "move")
	assert.Equal(t, sum.RunID, data["run_id"])

	require.Len(t, sum.Results, 2)
	assert.Equal(t, ActionCopy, sum.Results[0].Action)
	assert.Equal(t, ActionMove, sum.Results[1].Action)
	assert.Equal(t, "list 100/3", crm.calls[0])
}

func TestRunnerNotifierErrorDoesNotChangeEnvelope(t *testing.T) {
	crm := newFakeCRM()
	crm.add(lead(1, stageApp, 6000))
	n := &recordingNotifier{err: errors.New("smtp down")}

	resp, _ := newTestRunner(crm, n).Run(context.Background(), ActionMove, models.ParameterOverrides{})
	assert.True(t, resp.Success)
	assert.Len(t, n.summaries, 1)
}

type panickingCRM struct{ *fakeCRM }

func (panickingCRM) ListLeads(context.Context, int64, int64, int) ([]models.Lead, error) {
	panic("nil map write")
}

func TestRunnerRecoversPanics(t *testing.T) {
	crm := panickingCRM{newFakeCRM()}
	r := newTestRunner(crm.fakeCRM, nil)
	r.Move.CRM = crm

	resp, sum := r.Run(context.Background(), ActionMove, models.ParameterOverrides{})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "nil map write")
	assert.Equal(t, map[string]any{}, resp.Data)
	require.Len(t, sum.Results, 1)

	r.Debug = true
	resp, _ = r.Run(context.Background(), ActionMove, models.ParameterOverrides{})
	data := resp.Data.(map[string]any)
	assert.Contains(t, data["file"], "runner_test.go")
	assert.NotZero(t, data["line"])
}
