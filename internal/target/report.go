package target

import (
	"time"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// RunReport is the state of the current or last run in a form fit for the
// status command and the progress endpoint.
type RunReport struct {
	State       entities.ImportStatus `json:"state" yaml:"state"`
	RunID       string                `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	CurrentStep string                `json:"current_step,omitempty" yaml:"current_step,omitempty"`
	StartedAt   *time.Time            `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty" yaml:"error,omitempty"`
	Steps       []StepReport          `json:"steps" yaml:"steps"`
	Mappings    map[string]int64      `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

// StepReport holds the counters of one step.
type StepReport struct {
	Step          string  `json:"step" yaml:"step"`
	Total         int64   `json:"total" yaml:"total"`
	Offset        int     `json:"offset" yaml:"offset"`
	Percent       float64 `json:"percent" yaml:"percent"`
	Batches       int     `json:"batches" yaml:"batches"`
	BatchesGated  int     `json:"batches_gated" yaml:"batches_gated"`
	Created       int64   `json:"created" yaml:"created"`
	AlreadyMapped int64   `json:"already_mapped" yaml:"already_mapped"`
	Skipped       int64   `json:"skipped" yaml:"skipped"`
	Failed        int64   `json:"failed" yaml:"failed"`
}

// Report reads the run state and per-step progress.
func (m *StateManager) Report() (*RunReport, error) {
	state, err := m.GetState()
	if err != nil {
		return nil, err
	}
	progress, err := m.Progress()
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		State:       state.State,
		RunID:       state.RunID,
		CurrentStep: state.CurrentStep,
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
		Error:       state.ErrorMessage,
		Steps:       make([]StepReport, 0, len(progress)),
	}
	for i := range progress {
		p := &progress[i]
		report.Steps = append(report.Steps, StepReport{
			Step:          p.Step,
			Total:         p.TotalRecords,
			Offset:        p.LastOffset,
			Percent:       p.Percent(),
			Batches:       p.Batches,
			BatchesGated:  p.BatchesGated,
			Created:       p.Created,
			AlreadyMapped: p.AlreadyMapped,
			Skipped:       p.Skipped,
			Failed:        p.Failed,
		})
	}
	return report, nil
}
