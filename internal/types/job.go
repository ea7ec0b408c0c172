package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

const (
  JobStatePending    = "pending"
  JobStateInProgress = "in_progress"
  JobStateDone       = "done"
  JobStateFailed     = "failed"
)

// IngestJob is one durable background ingestion task. State progresses
// pending -> in_progress -> {done|failed} and never retreats.
type IngestJob struct {
  JobID           uuid.UUID      `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
  URL             string         `gorm:"column:url;not null" json:"url"`
  State           string         `gorm:"column:state;not null;index" json:"state"`
  Result          datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
  CancelRequested bool           `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
  CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
  UpdatedAt       time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
}

func (IngestJob) TableName() string { return "jobs" }
