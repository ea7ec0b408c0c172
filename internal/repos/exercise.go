package repos

import (
  "errors"
  "strings"
  "time"

  "github.com/google/uuid"
  "github.com/jackc/pgx/v5/pgconn"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const uniqueViolationCode = "23505"

// ExerciseFilter narrows List results. Nil bounds are open; NameContains is a
// raw substring whose LIKE metacharacters are escaped before matching.
type ExerciseFilter struct {
  NameContains    string
  FitnessLevelMin *int
  FitnessLevelMax *int
  IntensityMin    *int
  IntensityMax    *int
  CreatedAfter    *time.Time
  CreatedBefore   *time.Time
  Limit           int
  Offset          int
}

type ExerciseRepo interface {
  Create(dbc dbctx.Context, exercise *types.Exercise) (*types.Exercise, error)
  GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error)
  GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error)
  List(dbc dbctx.Context, filter ExerciseFilter) ([]*types.Exercise, error)
  FindByFingerprint(dbc dbctx.Context, normalizedURL string, carouselIndex int, name string) (*types.Exercise, error)
  SearchByURL(dbc dbctx.Context, normalizedURL string) ([]*types.Exercise, error)
  UpdateVectorID(dbc dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error
  Delete(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error)
  ForEachBatch(dbc dbctx.Context, batchSize int, fn func(rows []*types.Exercise) error) error
}

type exerciseRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewExerciseRepo(db *gorm.DB, baseLog *logger.Logger) ExerciseRepo {
  return &exerciseRepo{db: db, log: baseLog.With("repo", "ExerciseRepo")}
}

// Create inserts one exercise. A fingerprint collision surfaces as
// pkgerrors.ErrDuplicate so callers can branch without inspecting SQLSTATEs.
func (r *exerciseRepo) Create(dbc dbctx.Context, exercise *types.Exercise) (*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if exercise == nil {
    return nil, pkgerrors.ErrInvalidArgument
  }
  if err := transaction.WithContext(dbc.Ctx).Create(exercise).Error; err != nil {
    if isUniqueViolation(err) {
      return nil, pkgerrors.ErrDuplicate
    }
    return nil, err
  }
  return exercise, nil
}

func (r *exerciseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, pkgerrors.ErrNotFound
  }
  var row types.Exercise
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

// GetByIDs returns rows in input order, with duplicate input ids repeated and
// unknown ids skipped.
func (r *exerciseRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  out := []*types.Exercise{}
  if len(ids) == 0 {
    return out, nil
  }

  distinct := make([]uuid.UUID, 0, len(ids))
  seen := make(map[uuid.UUID]struct{}, len(ids))
  for _, id := range ids {
    if id == uuid.Nil {
      continue
    }
    if _, ok := seen[id]; ok {
      continue
    }
    seen[id] = struct{}{}
    distinct = append(distinct, id)
  }
  if len(distinct) == 0 {
    return out, nil
  }

  var rows []*types.Exercise
  if err := transaction.WithContext(dbc.Ctx).
    Where("id IN ?", distinct).
    Find(&rows).Error; err != nil {
    return nil, err
  }

  byID := make(map[uuid.UUID]*types.Exercise, len(rows))
  for _, row := range rows {
    byID[row.ID] = row
  }
  for _, id := range ids {
    if row, ok := byID[id]; ok {
      out = append(out, row)
    }
  }
  return out, nil
}

func (r *exerciseRepo) List(dbc dbctx.Context, filter ExerciseFilter) ([]*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }

  q := transaction.WithContext(dbc.Ctx).Model(&types.Exercise{})
  if name := strings.TrimSpace(filter.NameContains); name != "" {
    q = q.Where(`name ILIKE ? ESCAPE '\'`, "%"+escapeLike(name)+"%")
  }
  if filter.FitnessLevelMin != nil {
    q = q.Where("fitness_level >= ?", *filter.FitnessLevelMin)
  }
  if filter.FitnessLevelMax != nil {
    q = q.Where("fitness_level <= ?", *filter.FitnessLevelMax)
  }
  if filter.IntensityMin != nil {
    q = q.Where("intensity >= ?", *filter.IntensityMin)
  }
  if filter.IntensityMax != nil {
    q = q.Where("intensity <= ?", *filter.IntensityMax)
  }
  if filter.CreatedAfter != nil {
    q = q.Where("created_at >= ?", *filter.CreatedAfter)
  }
  if filter.CreatedBefore != nil {
    q = q.Where("created_at <= ?", *filter.CreatedBefore)
  }

  limit := filter.Limit
  if limit <= 0 || limit > 200 {
    limit = 50
  }
  offset := filter.Offset
  if offset < 0 {
    offset = 0
  }

  var rows []*types.Exercise
  if err := q.Order("created_at DESC").
    Limit(limit).
    Offset(offset).
    Find(&rows).Error; err != nil {
    return nil, err
  }
  return rows, nil
}

// FindByFingerprint returns (nil, nil) when no row matches so the idempotent
// skip check does not have to treat absence as an error.
func (r *exerciseRepo) FindByFingerprint(dbc dbctx.Context, normalizedURL string, carouselIndex int, name string) (*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if normalizedURL == "" || name == "" {
    return nil, nil
  }
  var row types.Exercise
  err := transaction.WithContext(dbc.Ctx).
    Where("normalized_url = ? AND carousel_index = ? AND name = ?", normalizedURL, carouselIndex, name).
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

func (r *exerciseRepo) SearchByURL(dbc dbctx.Context, normalizedURL string) ([]*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  var rows []*types.Exercise
  if strings.TrimSpace(normalizedURL) == "" {
    return rows, nil
  }
  if err := transaction.WithContext(dbc.Ctx).
    Where("normalized_url = ?", normalizedURL).
    Order("carousel_index ASC, created_at ASC").
    Find(&rows).Error; err != nil {
    return nil, err
  }
  return rows, nil
}

func (r *exerciseRepo) UpdateVectorID(dbc dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil || vectorID == uuid.Nil {
    return pkgerrors.ErrInvalidArgument
  }
  result := transaction.WithContext(dbc.Ctx).
    Model(&types.Exercise{}).
    Where("id = ?", id).
    Update("vector_id", vectorID)
  if result.Error != nil {
    return result.Error
  }
  if result.RowsAffected == 0 {
    return pkgerrors.ErrNotFound
  }
  return nil
}

// Delete removes the row and returns it so the caller can drive cascade
// cleanup of the clip file and vector entry.
func (r *exerciseRepo) Delete(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if id == uuid.Nil {
    return nil, pkgerrors.ErrNotFound
  }

  var deleted *types.Exercise
  err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
    var row types.Exercise
    if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
      Where("id = ?", id).
      First(&row).Error; err != nil {
      return err
    }
    if err := txx.Where("id = ?", id).Delete(&types.Exercise{}).Error; err != nil {
      return err
    }
    deleted = &row
    return nil
  })
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, pkgerrors.ErrNotFound
  }
  if err != nil {
    return nil, err
  }
  return deleted, nil
}

// ForEachBatch streams the whole table in primary-key batches. Used by the
// reconciliation sweep so it never loads every row at once.
func (r *exerciseRepo) ForEachBatch(dbc dbctx.Context, batchSize int, fn func(rows []*types.Exercise) error) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if fn == nil {
    return nil
  }
  if batchSize <= 0 {
    batchSize = 500
  }
  var batch []*types.Exercise
  return transaction.WithContext(dbc.Ctx).
    Model(&types.Exercise{}).
    Order("id").
    FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
      return fn(batch)
    }).Error
}

func isUniqueViolation(err error) bool {
  var pgErr *pgconn.PgError
  if errors.As(err, &pgErr) {
    return pgErr.Code == uniqueViolationCode
  }
  return errors.Is(err, gorm.ErrDuplicatedKey)
}

func escapeLike(s string) string {
  replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
  return replacer.Replace(s)
}
