package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// WorkoutRoutine is a user-curated ordered sequence of exercise ids. The id
// list is a jsonb array with order and duplicates preserved; there is no
// foreign key, stale ids are filtered at read time.
type WorkoutRoutine struct {
  ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  Name        string         `gorm:"column:name;size:200;not null" json:"name"`
  Description *string        `gorm:"column:description;type:text" json:"description,omitempty"`
  ExerciseIDs datatypes.JSON `gorm:"column:exercise_ids;type:jsonb;not null" json:"exercise_ids"`
  CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
  UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (WorkoutRoutine) TableName() string { return "workout_routines" }
