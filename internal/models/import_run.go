package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportRun is the persisted audit record of one import run. Counters and
// status mirror the runner's progress; Errors and CreatedIDs are stored
// as JSONB for later display and export.
type ImportRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     string         `gorm:"index:idx_import_runs_tenant;not null" json:"tenantId"`
	EntityType   string         `gorm:"not null" json:"entityType"`
	Status       string         `gorm:"not null" json:"status"`
	TotalRows    int            `json:"totalRows"`
	Processed    int            `json:"processed"`
	Successful   int            `json:"successful"`
	Failed       int            `json:"failed"`
	TotalBatches int            `json:"totalBatches"`
	Errors       datatypes.JSON `gorm:"type:jsonb" json:"errors,omitempty"`
	CreatedIDs   datatypes.JSON `gorm:"type:jsonb" json:"createdIds,omitempty"`
	CreatedBy    *string        `json:"createdBy,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (ImportRun) TableName() string { return "import_runs" }

// BeforeCreate assigns the run ID when the caller did not.
func (r *ImportRun) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
