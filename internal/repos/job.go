package repos

import (
  "bytes"
  "encoding/json"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

type IngestJobRepo interface {
  Create(dbc dbctx.Context, job *types.IngestJob) (*types.IngestJob, error)
  Get(dbc dbctx.Context, jobID uuid.UUID) (*types.IngestJob, error)
  Start(dbc dbctx.Context, jobID uuid.UUID) error
  Finish(dbc dbctx.Context, jobID uuid.UUID, state string, result datatypes.JSON) error
  ClaimNextPending(dbc dbctx.Context) (*types.IngestJob, error)
  RequestCancel(dbc dbctx.Context, jobID uuid.UUID) (bool, error)
  IsCancelRequested(dbc dbctx.Context, jobID uuid.UUID) (bool, error)
  ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestJob, error)
}

type ingestJobRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) IngestJobRepo {
  return &ingestJobRepo{db: db, log: baseLog.With("repo", "IngestJobRepo")}
}

func (r *ingestJobRepo) Create(dbc dbctx.Context, job *types.IngestJob) (*types.IngestJob, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if job == nil || job.JobID == uuid.Nil {
    return nil, pkgerrors.ErrInvalidArgument
  }
  if job.State == "" {
    job.State = types.JobStatePending
  }
  if err := transaction.WithContext(dbc.Ctx).Create(job).Error; err != nil {
    if isUniqueViolation(err) {
      return nil, pkgerrors.ErrDuplicate
    }
    return nil, err
  }
  return job, nil
}

func (r *ingestJobRepo) Get(dbc dbctx.Context, jobID uuid.UUID) (*types.IngestJob, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if jobID == uuid.Nil {
    return nil, pkgerrors.ErrNotFound
  }
  var row types.IngestJob
  err := transaction.WithContext(dbc.Ctx).
    Where("job_id = ?", jobID).
    First(&row).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, pkgerrors.ErrNotFound
  }
  if err != nil {
    return nil, err
  }
  return &row, nil
}

// Start transitions pending -> in_progress. Calling it again while the job is
// already in_progress is a no-op; calling it on a terminal job is a conflict.
func (r *ingestJobRepo) Start(dbc dbctx.Context, jobID uuid.UUID) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if jobID == uuid.Nil {
    return pkgerrors.ErrNotFound
  }

  result := transaction.WithContext(dbc.Ctx).
    Model(&types.IngestJob{}).
    Where("job_id = ? AND state = ?", jobID, types.JobStatePending).
    Updates(map[string]interface{}{
      "state":      types.JobStateInProgress,
      "updated_at": time.Now(),
    })
  if result.Error != nil {
    return result.Error
  }
  if result.RowsAffected > 0 {
    return nil
  }

  row, err := r.Get(dbc, jobID)
  if err != nil {
    return err
  }
  if row.State == types.JobStateInProgress {
    return nil
  }
  return pkgerrors.ErrConflict
}

// Finish records the terminal state. It is idempotent only when repeated with
// the identical terminal state and result payload; any other late writer is
// rejected so jobs never retreat or flap between terminals.
func (r *ingestJobRepo) Finish(dbc dbctx.Context, jobID uuid.UUID, state string, result datatypes.JSON) error {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if jobID == uuid.Nil {
    return pkgerrors.ErrNotFound
  }
  if state != types.JobStateDone && state != types.JobStateFailed {
    return pkgerrors.ErrInvalidArgument
  }

  updated := transaction.WithContext(dbc.Ctx).
    Model(&types.IngestJob{}).
    Where("job_id = ? AND state = ?", jobID, types.JobStateInProgress).
    Updates(map[string]interface{}{
      "state":      state,
      "result":     result,
      "updated_at": time.Now(),
    })
  if updated.Error != nil {
    return updated.Error
  }
  if updated.RowsAffected > 0 {
    return nil
  }

  row, err := r.Get(dbc, jobID)
  if err != nil {
    return err
  }
  if row.State == state && jsonEqual(row.Result, result) {
    return nil
  }
  return pkgerrors.ErrConflict
}

// ClaimNextPending atomically moves the oldest pending job to in_progress
// using FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
// Returns (nil, nil) when no pending job exists.
func (r *ingestJobRepo) ClaimNextPending(dbc dbctx.Context) (*types.IngestJob, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }

  var claimed *types.IngestJob
  err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
    var job types.IngestJob
    qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
      Where("state = ?", types.JobStatePending).
      Order("created_at ASC").
      First(&job).Error
    if errors.Is(qErr, gorm.ErrRecordNotFound) {
      return nil
    }
    if qErr != nil {
      return qErr
    }
    if uErr := txx.Model(&types.IngestJob{}).
      Where("job_id = ?", job.JobID).
      Updates(map[string]interface{}{
        "state":      types.JobStateInProgress,
        "updated_at": time.Now(),
      }).Error; uErr != nil {
      return uErr
    }
    job.State = types.JobStateInProgress
    claimed = &job
    return nil
  })
  if err != nil {
    return nil, err
  }
  return claimed, nil
}

// RequestCancel flags a live job. Terminal jobs are left untouched and report
// false so callers can answer "already finished".
func (r *ingestJobRepo) RequestCancel(dbc dbctx.Context, jobID uuid.UUID) (bool, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if jobID == uuid.Nil {
    return false, pkgerrors.ErrNotFound
  }

  result := transaction.WithContext(dbc.Ctx).
    Model(&types.IngestJob{}).
    Where("job_id = ? AND state IN ?", jobID, []string{types.JobStatePending, types.JobStateInProgress}).
    Updates(map[string]interface{}{
      "cancel_requested": true,
      "updated_at":       time.Now(),
    })
  if result.Error != nil {
    return false, result.Error
  }
  if result.RowsAffected > 0 {
    return true, nil
  }
  if _, err := r.Get(dbc, jobID); err != nil {
    return false, err
  }
  return false, nil
}

func (r *ingestJobRepo) IsCancelRequested(dbc dbctx.Context, jobID uuid.UUID) (bool, error) {
  row, err := r.Get(dbc, jobID)
  if err != nil {
    return false, err
  }
  return row.CancelRequested, nil
}

func (r *ingestJobRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestJob, error) {
  transaction := dbc.Tx
  if transaction == nil {
    transaction = r.db
  }
  if limit <= 0 || limit > 200 {
    limit = 50
  }
  var rows []*types.IngestJob
  if err := transaction.WithContext(dbc.Ctx).
    Order("created_at DESC").
    Limit(limit).
    Find(&rows).Error; err != nil {
    return nil, err
  }
  return rows, nil
}

func jsonEqual(a, b datatypes.JSON) bool {
  var compactA, compactB bytes.Buffer
  if json.Compact(&compactA, a) != nil || json.Compact(&compactB, b) != nil {
    return bytes.Equal(a, b)
  }
  return bytes.Equal(compactA.Bytes(), compactB.Bytes())
}
