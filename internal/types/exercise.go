package types

import (
  "time"
  "github.com/google/uuid"
)

// Exercise is one extracted movement. The row exclusively owns its clip file
// and its vector entry; deleting the row must delete both.
type Exercise struct {
  ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  URL           string     `gorm:"column:url;not null;index" json:"url"`
  NormalizedURL string     `gorm:"column:normalized_url;not null;uniqueIndex:ux_exercises_fingerprint,priority:1" json:"normalized_url"`
  CarouselIndex int        `gorm:"column:carousel_index;not null;default:1;uniqueIndex:ux_exercises_fingerprint,priority:2" json:"carousel_index"`
  Name          string     `gorm:"column:name;size:200;not null;uniqueIndex:ux_exercises_fingerprint,priority:3" json:"name"`
  ClipPath      string     `gorm:"column:clip_path;not null" json:"clip_path"`
  StartTime     float64    `gorm:"column:start_time;type:decimal(10,3);not null" json:"start_time"`
  EndTime       float64    `gorm:"column:end_time;type:decimal(10,3);not null" json:"end_time"`
  HowTo         *string    `gorm:"column:how_to;type:text" json:"how_to,omitempty"`
  Benefits      *string    `gorm:"column:benefits;type:text" json:"benefits,omitempty"`
  Counteracts   *string    `gorm:"column:counteracts;type:text" json:"counteracts,omitempty"`
  RoundsReps    *string    `gorm:"column:rounds_reps;type:text" json:"rounds_reps,omitempty"`
  FitnessLevel  *int       `gorm:"column:fitness_level;index" json:"fitness_level,omitempty"`
  Intensity     *int       `gorm:"column:intensity;index" json:"intensity,omitempty"`
  VectorID      *uuid.UUID `gorm:"column:vector_id;type:uuid" json:"vector_id,omitempty"`
  CreatedAt     time.Time  `gorm:"not null;default:now();index" json:"created_at"`
}

func (Exercise) TableName() string { return "exercises" }
