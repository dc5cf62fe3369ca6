package entities

import "time"

// ImportStatus represents the state of an import run.
type ImportStatus string

const (
	ImportStatusIdle      ImportStatus = "idle"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportState tracks the most recent import run.
// This is a singleton table (only one row with ID=1).
type ImportState struct {
	ID           uint         `gorm:"primaryKey;check:id = 1"` // Singleton constraint
	State        ImportStatus `gorm:"type:varchar(20);not null;default:'idle'"`
	RunID        string       `gorm:"type:varchar(36)"`
	CurrentStep  string       `gorm:"type:varchar(20)"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (ImportState) TableName() string {
	return "import_state"
}

// IsActive returns true if a run is in progress.
func (s *ImportState) IsActive() bool {
	return s.State == ImportStatusRunning
}

// ImportProgress holds per-step counters of the current run.
type ImportProgress struct {
	Step          string    `gorm:"primaryKey;type:varchar(20)"`
	TotalRecords  int64     `gorm:"not null;default:0"`
	LastOffset    int       `gorm:"not null;default:0"`
	Batches       int       `gorm:"not null;default:0"`
	BatchesGated  int       `gorm:"not null;default:0"`
	Created       int64     `gorm:"not null;default:0"`
	AlreadyMapped int64     `gorm:"not null;default:0"`
	Skipped       int64     `gorm:"not null;default:0"`
	Failed        int64     `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (ImportProgress) TableName() string {
	return "import_progress"
}

// Processed returns the number of records that went through the writer.
func (p *ImportProgress) Processed() int64 {
	return p.Created + p.AlreadyMapped + p.Skipped + p.Failed
}

// Percent returns progress as a percentage (0-100) based on the batch offset.
func (p *ImportProgress) Percent() float64 {
	if p.TotalRecords == 0 {
		return 0
	}
	pct := float64(p.LastOffset) / float64(p.TotalRecords) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// AllModels lists every entity migrated into the target store.
func AllModels() []any {
	return []any{
		&User{},
		&Category{},
		&Topic{},
		&Post{},
		&Upload{},
		&UserAvatar{},
		&ImportMapping{},
		&ImportState{},
		&ImportProgress{},
	}
}
