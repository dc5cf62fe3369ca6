package target

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

func setupStateManager(t *testing.T) *StateManager {
	t.Helper()
	return NewStateManager(setupSQLite(t).DB())
}

func TestStateManager_GetState(t *testing.T) {
	sm := setupStateManager(t)

	state, err := sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusIdle, state.State)
	assert.Equal(t, uint(1), state.ID)
	assert.False(t, state.IsActive())
}

func TestStateManager_RunLifecycle(t *testing.T) {
	sm := setupStateManager(t)

	require.NoError(t, sm.StartRun("run-1", false))

	state, err := sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusRunning, state.State)
	assert.Equal(t, "run-1", state.RunID)
	assert.NotNil(t, state.StartedAt)
	assert.Nil(t, state.CompletedAt)

	require.NoError(t, sm.BeginStep("users", 3))
	require.NoError(t, sm.RecordBatch("users", 2, false, BatchCounts{Created: 1, AlreadyMapped: 1}))
	require.NoError(t, sm.RecordBatch("users", 3, true, BatchCounts{}))

	state, err = sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, "users", state.CurrentStep)

	progress, err := sm.Progress()
	require.NoError(t, err)
	require.Len(t, progress, 1)
	p := progress[0]
	assert.Equal(t, "users", p.Step)
	assert.Equal(t, int64(3), p.TotalRecords)
	assert.Equal(t, 3, p.LastOffset)
	assert.Equal(t, 2, p.Batches)
	assert.Equal(t, 1, p.BatchesGated)
	assert.Equal(t, int64(2), p.Processed())
	assert.InDelta(t, 100.0, p.Percent(), 0.001)

	require.NoError(t, sm.CompleteRun())

	state, err = sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusCompleted, state.State)
	assert.NotNil(t, state.CompletedAt)
	assert.Empty(t, state.CurrentStep)
}

func TestStateManager_StartRun_FailsWhileRunning(t *testing.T) {
	sm := setupStateManager(t)

	require.NoError(t, sm.StartRun("run-1", false))

	err := sm.StartRun("run-2", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run run-1 is still running")
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	// A crashed run can be taken over explicitly.
	require.NoError(t, sm.StartRun("run-2", true))
	state, err := sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, "run-2", state.RunID)
}

// backdateState moves the last update of the running state into the past.
func backdateState(t *testing.T, db *gorm.DB, age time.Duration) {
	t.Helper()
	err := db.Model(&entities.ImportState{}).
		Where("id = 1").
		UpdateColumn("updated_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

func TestStateManager_StartRun_TakesOverStaleRun(t *testing.T) {
	db := setupSQLite(t).DB()
	sm := NewStateManager(db)
	sm.SetStaleAfter(10 * time.Minute)

	require.NoError(t, sm.StartRun("crashed", false))
	require.NoError(t, sm.BeginStep("users", 10))
	backdateState(t, db, 5*time.Minute)
	require.Error(t, sm.StartRun("too-early", false))

	backdateState(t, db, time.Hour)
	require.NoError(t, sm.StartRun("rerun", false))

	state, err := sm.GetState()
	require.NoError(t, err)
	assert.True(t, state.IsActive())
	assert.Equal(t, "rerun", state.RunID)

	progress, err := sm.Progress()
	require.NoError(t, err)
	assert.Empty(t, progress, "progress of the crashed run is reset")
}

func TestStateManager_RecordBatchKeepsRunFresh(t *testing.T) {
	db := setupSQLite(t).DB()
	sm := NewStateManager(db)
	sm.SetStaleAfter(10 * time.Minute)

	require.NoError(t, sm.StartRun("run-1", false))
	require.NoError(t, sm.BeginStep("posts", 10))
	backdateState(t, db, time.Hour)
	require.NoError(t, sm.RecordBatch("posts", 5, false, BatchCounts{Created: 5}))

	err := sm.StartRun("run-2", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run run-1 is still running")
}

func TestStateManager_StaleTakeoverDisabled(t *testing.T) {
	db := setupSQLite(t).DB()
	sm := NewStateManager(db)
	sm.SetStaleAfter(0)

	require.NoError(t, sm.StartRun("run-1", false))
	backdateState(t, db, 24*time.Hour)
	require.Error(t, sm.StartRun("run-2", false))
	require.NoError(t, sm.StartRun("run-2", true))
}

func TestStateManager_StartRun_ResetsProgress(t *testing.T) {
	sm := setupStateManager(t)

	require.NoError(t, sm.StartRun("run-1", false))
	require.NoError(t, sm.BeginStep("posts", 10))
	require.NoError(t, sm.FailRun("source went away"))

	state, err := sm.GetState()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusFailed, state.State)
	assert.Equal(t, "source went away", state.ErrorMessage)

	require.NoError(t, sm.StartRun("run-2", false))

	state, err = sm.GetState()
	require.NoError(t, err)
	assert.Empty(t, state.ErrorMessage)

	progress, err := sm.Progress()
	require.NoError(t, err)
	assert.Empty(t, progress)
}

func TestStateManager_TransitionsRequireRunning(t *testing.T) {
	sm := setupStateManager(t)

	err := sm.BeginStep("users", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no import run is active")

	err = sm.CompleteRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "current state is idle")

	err = sm.FailRun("boom")
	require.Error(t, err)

	err = sm.RecordBatch("users", 1, false, BatchCounts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step users was not started")
}

func TestStateManager_BeginStepTwiceKeepsCounters(t *testing.T) {
	sm := setupStateManager(t)

	require.NoError(t, sm.StartRun("run-1", false))
	require.NoError(t, sm.BeginStep("posts", 5))
	require.NoError(t, sm.RecordBatch("posts", 5, false, BatchCounts{Created: 5}))
	require.NoError(t, sm.BeginStep("posts", 6))

	progress, err := sm.Progress()
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, int64(6), progress[0].TotalRecords)
	assert.Equal(t, int64(5), progress[0].Created)
}

func TestStateManager_Report(t *testing.T) {
	sm := setupStateManager(t)

	report, err := sm.Report()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusIdle, report.State)
	assert.Empty(t, report.Steps)

	require.NoError(t, sm.StartRun("run-r", false))
	require.NoError(t, sm.BeginStep("users", 4))
	require.NoError(t, sm.RecordBatch("users", 2, true, BatchCounts{}))
	require.NoError(t, sm.FailRun("source went away"))

	report, err = sm.Report()
	require.NoError(t, err)
	assert.Equal(t, entities.ImportStatusFailed, report.State)
	assert.Equal(t, "run-r", report.RunID)
	assert.Equal(t, "source went away", report.Error)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StepReport{Step: "users", Total: 4, Offset: 2, Percent: 50, Batches: 1, BatchesGated: 1}, report.Steps[0])
}
