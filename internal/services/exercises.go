package services

import (
  "context"
  "os"
  "path/filepath"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

type ExerciseService interface {
  List(ctx context.Context, filter repos.ExerciseFilter) ([]*types.Exercise, error)
  Search(ctx context.Context, query string, limit int) ([]*types.Exercise, error)
  Get(ctx context.Context, id uuid.UUID) (*types.Exercise, error)
  BulkGet(ctx context.Context, ids []uuid.UUID) ([]*types.Exercise, error)
  Delete(ctx context.Context, id uuid.UUID) (*types.Exercise, error)
}

type exerciseService struct {
  log          *logger.Logger
  exerciseRepo repos.ExerciseRepo
  vectors      qdrant.VectorStore
  contentRoot  string
}

func NewExerciseService(
  baseLog *logger.Logger,
  exerciseRepo repos.ExerciseRepo,
  vectors qdrant.VectorStore,
  contentRoot string,
) ExerciseService {
  return &exerciseService{
    log:          baseLog.With("service", "ExerciseService"),
    exerciseRepo: exerciseRepo,
    vectors:      vectors,
    contentRoot:  contentRoot,
  }
}

func (s *exerciseService) List(ctx context.Context, filter repos.ExerciseFilter) ([]*types.Exercise, error) {
  return s.exerciseRepo.List(dbctx.Context{Ctx: ctx}, filter)
}

func (s *exerciseService) Search(ctx context.Context, query string, limit int) ([]*types.Exercise, error) {
  return s.exerciseRepo.List(dbctx.Context{Ctx: ctx}, repos.ExerciseFilter{
    NameContains: query,
    Limit:        limit,
  })
}

func (s *exerciseService) Get(ctx context.Context, id uuid.UUID) (*types.Exercise, error) {
  return s.exerciseRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *exerciseService) BulkGet(ctx context.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
  return s.exerciseRepo.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
}

// Delete cascades in reverse creation order: vector entry first, clip file
// second, row last. The side effects are best-effort; only the row delete
// decides the outcome, and the reconcile sweep picks up anything the
// best-effort steps left behind.
func (s *exerciseService) Delete(ctx context.Context, id uuid.UUID) (*types.Exercise, error) {
  dbc := dbctx.Context{Ctx: ctx}
  row, err := s.exerciseRepo.GetByID(dbc, id)
  if err != nil {
    return nil, err
  }

  if row.VectorID != nil {
    if err := s.vectors.Delete(ctx, []string{row.VectorID.String()}); err != nil {
      s.log.Warn("cascade vector delete failed, sweep will collect it",
        "exercise_id", id, "vector_id", row.VectorID, "error", err)
    }
  }

  if row.ClipPath != "" {
    abs := filepath.Join(s.contentRoot, filepath.FromSlash(row.ClipPath))
    if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
      s.log.Warn("cascade clip remove failed, sweep will collect it",
        "exercise_id", id, "clip_path", row.ClipPath, "error", err)
    }
  }

  deleted, err := s.exerciseRepo.Delete(dbc, id)
  if err != nil {
    return nil, err
  }
  s.log.Info("exercise deleted", "exercise_id", id, "name", deleted.Name)
  return deleted, nil
}
