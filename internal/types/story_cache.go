package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// StoryCache memoizes generated story lists by SHA-256 of the normalized
// prompt so repeat prompts skip the model call.
type StoryCache struct {
  ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  PromptHash string         `gorm:"column:prompt_hash;size:64;not null;uniqueIndex" json:"prompt_hash"`
  Prompt     string         `gorm:"column:prompt;type:text;not null" json:"prompt"`
  Stories    datatypes.JSON `gorm:"column:stories;type:jsonb;not null" json:"stories"`
  UseCount   int            `gorm:"column:use_count;not null;default:0" json:"use_count"`
  LastUsedAt *time.Time     `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
  CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (StoryCache) TableName() string { return "story_cache" }
