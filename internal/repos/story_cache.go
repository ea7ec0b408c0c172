package repos

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

type StoryCacheRepo interface {
  GetByHash(dbc dbctx.Context, promptHash string) (*types.StoryCache, error)
  Touch(dbc dbctx.Context, promptHash string) error
  Put(dbc dbctx.Context, entry *types.StoryCache) (*types.StoryCache, error)
}

type storyCacheRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewStoryCacheRepo(db *gorm.DB, baseLog *logger.Logger) StoryCacheRepo {
  return &storyCacheRepo{db: db, log: baseLog.With("repo", "StoryCacheRepo")}
}

func (r *storyCacheRepo) GetByHash(dbc dbctx.Context, promptHash string) (*types.StoryCache, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if promptHash == "" {
    return nil, pkgerrors.ErrInvalidArgument
  }
  var row types.StoryCache
  err := transaction.WithContext(dbc.Ctx).
    Where("prompt_hash = ?", promptHash).
    Limit(1).
    Find(&row).Error
  if err != nil {
    return nil, err
  }
  if row.ID == uuid.Nil {
    return nil, nil
  }
  return &row, nil
}

// Touch bumps the usage counters so rarely-hit entries can be aged out later.
func (r *storyCacheRepo) Touch(dbc dbctx.Context, promptHash string) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if promptHash == "" {
    return pkgerrors.ErrInvalidArgument
  }
  result := transaction.WithContext(dbc.Ctx).
    Model(&types.StoryCache{}).
    Where("prompt_hash = ?", promptHash).
    Updates(map[string]interface{}{
      "use_count":    gorm.Expr("use_count + 1"),
      "last_used_at": time.Now(),
    })
  if result.Error != nil {
    return result.Error
  }
  if result.RowsAffected == 0 {
    return pkgerrors.ErrNotFound
  }
  return nil
}

// Put inserts or refreshes the cached stories for a prompt hash. Concurrent
// writers for the same hash converge on the last write.
func (r *storyCacheRepo) Put(dbc dbctx.Context, entry *types.StoryCache) (*types.StoryCache, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if entry == nil || entry.PromptHash == "" {
    return nil, pkgerrors.ErrInvalidArgument
  }
  err := transaction.WithContext(dbc.Ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "prompt_hash"}},
      DoUpdates: clause.AssignmentColumns([]string{"prompt", "stories", "updated_at"}),
    }).
    Create(entry).Error
  if err != nil {
    return nil, err
  }
  return entry, nil
}
