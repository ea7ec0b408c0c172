package repos

import (
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

type WorkoutRoutineRepo interface {
  Create(dbc dbctx.Context, routine *types.WorkoutRoutine) (*types.WorkoutRoutine, error)
  GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkoutRoutine, error)
  List(dbc dbctx.Context, limit, offset int) ([]*types.WorkoutRoutine, error)
  Update(dbc dbctx.Context, routine *types.WorkoutRoutine) (*types.WorkoutRoutine, error)
  Delete(dbc dbctx.Context, id uuid.UUID) error
}

type workoutRoutineRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewWorkoutRoutineRepo(db *gorm.DB, baseLog *logger.Logger) WorkoutRoutineRepo {
  return &workoutRoutineRepo{db: db, log: baseLog.With("repo", "WorkoutRoutineRepo")}
}

func (r *workoutRoutineRepo) Create(dbc dbctx.Context, routine *types.WorkoutRoutine) (*types.WorkoutRoutine, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if routine == nil || routine.Name == "" {
    return nil, pkgerrors.ErrInvalidArgument
  }
  if err := transaction.WithContext(dbc.Ctx).Create(routine).Error; err != nil {
    return nil, err
  }
  return routine, nil
}

func (r *workoutRoutineRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkoutRoutine, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, pkgerrors.ErrNotFound
  }
  var row types.WorkoutRoutine
  err := transaction.WithContext(dbc.Ctx).
    Where("id = ?", id).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, pkgerrors.ErrNotFound
  }
  if err != nil {
    return nil, err
  }
  return &row, nil
}

func (r *workoutRoutineRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.WorkoutRoutine, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 || limit > 200 {
    limit = 50
  }
  if offset < 0 {
    offset = 0
  }
  var rows []*types.WorkoutRoutine
  if err := transaction.WithContext(dbc.Ctx).
    Order("created_at DESC").
    Limit(limit).
    Offset(offset).
    Find(&rows).Error; err != nil {
    return nil, err
  }
  return rows, nil
}

func (r *workoutRoutineRepo) Update(dbc dbctx.Context, routine *types.WorkoutRoutine) (*types.WorkoutRoutine, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if routine == nil || routine.ID == uuid.Nil {
    return nil, pkgerrors.ErrInvalidArgument
  }
  result := transaction.WithContext(dbc.Ctx).
    Model(&types.WorkoutRoutine{}).
    Where("id = ?", routine.ID).
    Updates(map[string]interface{}{
      "name":         routine.Name,
      "description":  routine.Description,
      "exercise_ids": routine.ExerciseIDs,
    })
  if result.Error != nil {
    return nil, result.Error
  }
  if result.RowsAffected == 0 {
    return nil, pkgerrors.ErrNotFound
  }
  return r.GetByID(dbc, routine.ID)
}

func (r *workoutRoutineRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return pkgerrors.ErrNotFound
  }
  result := transaction.WithContext(dbc.Ctx).
    Where("id = ?", id).
    Delete(&types.WorkoutRoutine{})
  if result.Error != nil {
    return result.Error
  }
  if result.RowsAffected == 0 {
    return pkgerrors.ErrNotFound
  }
  return nil
}
