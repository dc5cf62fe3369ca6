package entities

import "time"

// ImportMapping records which target entity was created for a source record.
// Rows are append-only; (kind, source_id) is unique.
type ImportMapping struct {
	ID        int64     `gorm:"primaryKey"`
	Kind      string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_import_mappings_key,priority:1"`
	SourceID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_import_mappings_key,priority:2"`
	TargetID  int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (ImportMapping) TableName() string {
	return "import_mappings"
}
