package services

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/moveatlas/moveatlas-backend/internal/clients/openai"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const maxRoutineNameLen = 200

// RoutineDetail is a routine joined with its resolved exercises. Order and
// duplicates follow exercise_ids; ids whose rows are gone are skipped, so
// a routine referencing deleted exercises still renders.
type RoutineDetail struct {
  Routine   *types.WorkoutRoutine `json:"routine"`
  Exercises []*types.Exercise     `json:"exercises"`
}

// PreviewPick is one story-driven suggestion: the story that drove the
// search, the exercise a selector model chose from the diverse results,
// and its one-line rationale.
type PreviewPick struct {
  Story     string          `json:"story"`
  Exercise  *types.Exercise `json:"exercise"`
  Score     float64         `json:"score"`
  Rationale string          `json:"rationale"`
}

type RoutineService interface {
  Create(ctx context.Context, name string, description *string, exerciseIDs []uuid.UUID) (*types.WorkoutRoutine, error)
  Get(ctx context.Context, id uuid.UUID) (*RoutineDetail, error)
  List(ctx context.Context, limit, offset int) ([]*types.WorkoutRoutine, error)
  Delete(ctx context.Context, id uuid.UUID) error
  Preview(ctx context.Context, prompt string, count int) ([]PreviewPick, error)
}

type routineService struct {
  log          *logger.Logger
  ai           openai.Client
  routineRepo  repos.WorkoutRoutineRepo
  exerciseRepo repos.ExerciseRepo
  stories      StoryService
  retrieval    RetrievalService
}

func NewRoutineService(
  baseLog *logger.Logger,
  ai openai.Client,
  routineRepo repos.WorkoutRoutineRepo,
  exerciseRepo repos.ExerciseRepo,
  stories StoryService,
  retrieval RetrievalService,
) RoutineService {
  return &routineService{
    log:          baseLog.With("service", "RoutineService"),
    ai:           ai,
    routineRepo:  routineRepo,
    exerciseRepo: exerciseRepo,
    stories:      stories,
    retrieval:    retrieval,
  }
}

func (s *routineService) Create(ctx context.Context, name string, description *string, exerciseIDs []uuid.UUID) (*types.WorkoutRoutine, error) {
  name = strings.TrimSpace(name)
  if name == "" || len(name) > maxRoutineNameLen {
    return nil, pkgerrors.ErrInvalidArgument
  }
  if len(exerciseIDs) == 0 {
    return nil, pkgerrors.ErrInvalidArgument
  }

  raw, err := json.Marshal(exerciseIDs)
  if err != nil {
    return nil, fmt.Errorf("encode exercise ids: %w", err)
  }
  routine := &types.WorkoutRoutine{
    Name:        name,
    Description: description,
    ExerciseIDs: datatypes.JSON(raw),
  }
  created, err := s.routineRepo.Create(dbctx.Context{Ctx: ctx}, routine)
  if err != nil {
    return nil, err
  }
  s.log.Info("routine created", "routine_id", created.ID, "exercises", len(exerciseIDs))
  return created, nil
}

func (s *routineService) Get(ctx context.Context, id uuid.UUID) (*RoutineDetail, error) {
  dbc := dbctx.Context{Ctx: ctx}
  routine, err := s.routineRepo.GetByID(dbc, id)
  if err != nil {
    return nil, err
  }

  var ids []uuid.UUID
  if err := json.Unmarshal(routine.ExerciseIDs, &ids); err != nil {
    return nil, fmt.Errorf("decode exercise ids for routine %s: %w", id, err)
  }
  exercises, err := s.exerciseRepo.GetByIDs(dbc, ids)
  if err != nil {
    return nil, err
  }
  return &RoutineDetail{Routine: routine, Exercises: exercises}, nil
}

func (s *routineService) List(ctx context.Context, limit, offset int) ([]*types.WorkoutRoutine, error) {
  return s.routineRepo.List(dbctx.Context{Ctx: ctx}, limit, offset)
}

func (s *routineService) Delete(ctx context.Context, id uuid.UUID) error {
  if err := s.routineRepo.Delete(dbctx.Context{Ctx: ctx}, id); err != nil {
    return err
  }
  s.log.Info("routine deleted", "routine_id", id)
  return nil
}

// Preview builds a story-driven suggestion set without persisting
// anything: stories from the prompt, diverse search per story, then a
// text-only selector picks the single best candidate per story. Selector
// failure degrades to the highest-scoring candidate.
func (s *routineService) Preview(ctx context.Context, prompt string, count int) ([]PreviewPick, error) {
  stories, err := s.stories.GenerateStories(ctx, prompt, count)
  if err != nil {
    return nil, err
  }

  picks := make([]PreviewPick, 0, len(stories))
  for _, story := range stories {
    results, err := s.retrieval.DiverseSearch(ctx, DiverseSearchParams{Query: story})
    if err != nil {
      s.log.Warn("diverse search failed for story", "story", story, "error", err)
      continue
    }
    if len(results) == 0 {
      s.log.Info("no candidates for story", "story", story)
      continue
    }

    idx, rationale := s.selectCandidate(ctx, story, results)
    picks = append(picks, PreviewPick{
      Story:     story,
      Exercise:  results[idx].Exercise,
      Score:     results[idx].Score,
      Rationale: rationale,
    })
  }
  return picks, nil
}

// selectCandidate asks the selector model for a 1-based pick plus a
// one-line rationale. Any failure falls back to the top-scored candidate,
// which is always index 0 since results arrive score-descending.
func (s *routineService) selectCandidate(ctx context.Context, story string, results []RetrievedExercise) (int, string) {
  var b strings.Builder
  fmt.Fprintf(&b, "STORY: %s\n\nCANDIDATES:\n", story)
  for i, r := range results {
    ex := r.Exercise
    fmt.Fprintf(&b, "%d. %s (score %.3f, duration %.1fs)\n", i+1, ex.Name, r.Score, ex.EndTime-ex.StartTime)
    if ex.HowTo != nil && *ex.HowTo != "" {
      fmt.Fprintf(&b, "   How: %s\n", *ex.HowTo)
    }
    if ex.Benefits != nil && *ex.Benefits != "" {
      fmt.Fprintf(&b, "   Benefits: %s\n", *ex.Benefits)
    }
  }
  b.WriteString("\nPick the single candidate that best serves the story. Prefer movement variety and exact relevance over raw score.")

  raw, err := s.ai.GenerateJSON(ctx,
    "You are a fitness coach choosing the best exercise clip for a training goal. Answer with the pick number and a one-line rationale.",
    b.String(),
    "exercise_pick",
    selectorSchema(len(results)),
  )
  if err != nil {
    s.log.Warn("selector model failed, using top score", "story", story, "error", err)
    return 0, "Highest similarity score"
  }

  pick, rationale := parseSelectorPick(raw)
  if pick < 1 || pick > len(results) {
    s.log.Warn("selector returned out-of-range pick, using top score", "pick", pick)
    return 0, "Highest similarity score"
  }
  return pick - 1, rationale
}

func selectorSchema(n int) map[string]any {
  return map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "required":             []string{"pick", "rationale"},
    "properties": map[string]any{
      "pick": map[string]any{
        "type":    "integer",
        "minimum": 1,
        "maximum": n,
      },
      "rationale": map[string]any{"type": "string", "maxLength": 300},
    },
  }
}

func parseSelectorPick(raw map[string]any) (int, string) {
  pick := 0
  switch v := raw["pick"].(type) {
  case float64:
    pick = int(v)
  case int:
    pick = v
  case json.Number:
    if n, err := v.Int64(); err == nil {
      pick = int(n)
    }
  }
  rationale, _ := raw["rationale"].(string)
  return pick, strings.TrimSpace(rationale)
}
