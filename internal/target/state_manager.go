package target

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// DefaultStaleRunAfter is how long a running state may go without a batch
// before another process takes it over.
const DefaultStaleRunAfter = 30 * time.Minute

// BatchCounts are the writer results of one batch.
type BatchCounts struct {
	Created       int64
	AlreadyMapped int64
	Skipped       int64
	Failed        int64
}

// StateManager tracks the import run state machine and per-step progress.
// State transitions use conditional updates so two importer processes
// cannot both start a run against the same target.
type StateManager struct {
	db         *gorm.DB
	mu         sync.RWMutex
	staleAfter time.Duration
}

// NewStateManager creates a new run state manager.
func NewStateManager(db *gorm.DB) *StateManager {
	return &StateManager{
		db:         db,
		staleAfter: DefaultStaleRunAfter,
	}
}

// SetStaleAfter changes how long a running state may stay untouched before
// StartRun takes it over. Zero or less disables the takeover.
func (m *StateManager) SetStaleAfter(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleAfter = d
}

// GetState returns the current run state.
func (m *StateManager) GetState() (*entities.ImportState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var state entities.ImportState
	if err := m.db.First(&state, 1).Error; err != nil {
		return nil, fmt.Errorf("failed to get import state: %w", err)
	}
	return &state, nil
}

// StartRun transitions to running and clears the progress of the previous
// run. A run left in running is taken over when force is set or when it has
// not recorded a batch for longer than the stale threshold.
func (m *StateManager) StartRun(runID string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	updates := map[string]any{
		"state":         entities.ImportStatusRunning,
		"run_id":        runID,
		"current_step":  "",
		"started_at":    &now,
		"completed_at":  nil,
		"error_message": "",
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		var current entities.ImportState
		if err := tx.First(&current, 1).Error; err != nil {
			return fmt.Errorf("failed to get current state: %w", err)
		}

		if current.IsActive() && !force {
			idle := now.Sub(current.UpdatedAt)
			if m.staleAfter <= 0 || idle < m.staleAfter {
				return errors.Newf("cannot start import run: run %s is still %s", current.RunID, current.State).
					Component("target").
					Category(errors.CategoryState).
					Context("run_id", current.RunID).
					Context("idle", idle.Round(time.Second).String()).
					Build()
			}
		}

		// run_id pins the row read above so two processes cannot both take it.
		result := tx.Model(&entities.ImportState{}).
			Where("id = 1 AND state = ? AND run_id = ?", current.State, current.RunID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to start import run: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.Newf("cannot start import run: run %s changed state concurrently", current.RunID).
				Component("target").
				Category(errors.CategoryState).
				Build()
		}

		if err := tx.Where("1 = 1").Delete(&entities.ImportProgress{}).Error; err != nil {
			return fmt.Errorf("failed to reset import progress: %w", err)
		}
		return nil
	})
}

// BeginStep records the step now running and its source record count.
func (m *StateManager) BeginStep(step string, totalRecords int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.ImportState{}).
			Where("id = 1 AND state = ?", entities.ImportStatusRunning).
			Update("current_step", step)
		if result.Error != nil {
			return fmt.Errorf("failed to set current step: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("cannot begin step %s: no import run is active", step)
		}

		progress := entities.ImportProgress{Step: step, TotalRecords: totalRecords}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "step"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_records", "updated_at"}),
		}).Create(&progress).Error
		if err != nil {
			return fmt.Errorf("failed to record step progress: %w", err)
		}
		return nil
	})
}

// RecordBatch adds one batch to the step counters. offset is the source
// offset after the batch; gated marks a batch skipped by the idempotency gate.
func (m *StateManager) RecordBatch(step string, offset int, gated bool, counts BatchCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gatedInc := 0
	if gated {
		gatedInc = 1
	}

	updates := map[string]any{
		"last_offset":    offset,
		"batches":        gorm.Expr("batches + 1"),
		"batches_gated":  gorm.Expr("batches_gated + ?", gatedInc),
		"created":        gorm.Expr("created + ?", counts.Created),
		"already_mapped": gorm.Expr("already_mapped + ?", counts.AlreadyMapped),
		"skipped":        gorm.Expr("skipped + ?", counts.Skipped),
		"failed":         gorm.Expr("failed + ?", counts.Failed),
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.ImportProgress{}).
			Where("step = ?", step).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to record batch: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("cannot record batch: step %s was not started", step)
		}

		// Heartbeat so a live run is never considered stale.
		err := tx.Model(&entities.ImportState{}).
			Where("id = 1 AND state = ?", entities.ImportStatusRunning).
			Update("updated_at", time.Now()).Error
		if err != nil {
			return fmt.Errorf("failed to touch import state: %w", err)
		}
		return nil
	})
}

// CompleteRun transitions from running to completed.
func (m *StateManager) CompleteRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	updates := map[string]any{
		"state":        entities.ImportStatusCompleted,
		"current_step": "",
		"completed_at": &now,
	}
	return m.finish(updates, "complete")
}

// FailRun transitions from running to failed and stores the error message.
func (m *StateManager) FailRun(errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	updates := map[string]any{
		"state":         entities.ImportStatusFailed,
		"completed_at":  &now,
		"error_message": errMsg,
	}
	return m.finish(updates, "fail")
}

// finish must be called with m.mu held.
func (m *StateManager) finish(updates map[string]any, verb string) error {
	result := m.db.Model(&entities.ImportState{}).
		Where("id = 1 AND state = ?", entities.ImportStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to %s import run: %w", verb, result.Error)
	}
	if result.RowsAffected == 0 {
		var current entities.ImportState
		if err := m.db.First(&current, 1).Error; err != nil {
			return fmt.Errorf("failed to get current state: %w", err)
		}
		return fmt.Errorf("cannot %s import run: current state is %s, expected running", verb, current.State)
	}
	return nil
}

// Progress returns the step counters of the current or last run.
func (m *StateManager) Progress() ([]entities.ImportProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var progress []entities.ImportProgress
	if err := m.db.Order("step").Find(&progress).Error; err != nil {
		return nil, fmt.Errorf("failed to get import progress: %w", err)
	}
	return progress, nil
}
