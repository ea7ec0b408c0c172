package services

import (
  "context"
  "errors"
  "os"
  "path/filepath"
  "testing"

  "github.com/google/uuid"

  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

type exerciseHarness struct {
  t         *testing.T
  svc       ExerciseService
  exercises *memExerciseRepo
  vectors   *memVectorStore
  root      string
}

func newExerciseHarness(t *testing.T) *exerciseHarness {
  t.Helper()
  h := &exerciseHarness{
    t:         t,
    exercises: newMemExerciseRepo(),
    vectors:   newMemVectorStore(),
    root:      t.TempDir(),
  }
  h.svc = NewExerciseService(newTestLogger(t), h.exercises, h.vectors, h.root)
  return h
}

// seedFull creates a row with its clip on disk and its vector in the store.
func (h *exerciseHarness) seedFull(name string) *types.Exercise {
  h.t.Helper()
  row, err := h.exercises.Create(dbc(), &types.Exercise{
    URL:           testReelURL,
    NormalizedURL: testReelURL,
    CarouselIndex: 1,
    Name:          name,
    ClipPath:      "clips/" + name + ".mp4",
    StartTime:     0,
    EndTime:       12,
  })
  if err != nil {
    h.t.Fatalf("create exercise: %v", err)
  }
  vectorID := uuid.New()
  if err := h.exercises.UpdateVectorID(dbc(), row.ID, vectorID); err != nil {
    h.t.Fatalf("link vector: %v", err)
  }
  abs := filepath.Join(h.root, filepath.FromSlash(row.ClipPath))
  if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
    h.t.Fatalf("mkdir clips: %v", err)
  }
  if err := os.WriteFile(abs, []byte("clip"), 0o644); err != nil {
    h.t.Fatalf("write clip: %v", err)
  }
  err = h.vectors.Upsert(context.Background(), []qdrant.Point{{
    ID:      vectorID.String(),
    Payload: map[string]any{"database_id": row.ID.String()},
  }})
  if err != nil {
    h.t.Fatalf("upsert vector: %v", err)
  }
  row.VectorID = &vectorID
  return row
}

func TestExerciseDeleteCascades(t *testing.T) {
  h := newExerciseHarness(t)
  row := h.seedFull("wall-handstand")

  deleted, err := h.svc.Delete(context.Background(), row.ID)
  if err != nil {
    t.Fatalf("Delete returned error: %v", err)
  }
  if deleted.Name != row.Name {
    t.Fatalf("deleted name: want=%q got=%q", row.Name, deleted.Name)
  }
  if got := h.exercises.count(); got != 0 {
    t.Fatalf("rows after delete: want=0 got=%d", got)
  }
  if got := h.vectors.pointCount(); got != 0 {
    t.Fatalf("vectors after delete: want=0 got=%d", got)
  }
  abs := filepath.Join(h.root, filepath.FromSlash(row.ClipPath))
  if _, err := os.Stat(abs); !os.IsNotExist(err) {
    t.Fatalf("clip file survived delete: %v", err)
  }
}

func TestExerciseDeleteSurvivesVectorStoreError(t *testing.T) {
  h := newExerciseHarness(t)
  row := h.seedFull("pike-press")
  h.vectors.deleteErr = errors.New("qdrant unreachable")

  if _, err := h.svc.Delete(context.Background(), row.ID); err != nil {
    t.Fatalf("Delete returned error: %v", err)
  }
  if got := h.exercises.count(); got != 0 {
    t.Fatalf("rows after delete: want=0 got=%d", got)
  }
  // the stranded vector is the sweep's job now
  if got := h.vectors.pointCount(); got != 1 {
    t.Fatalf("vectors after failed cascade: want=1 got=%d", got)
  }
}

func TestExerciseDeleteUnknownID(t *testing.T) {
  h := newExerciseHarness(t)
  h.seedFull("wall-handstand")

  _, err := h.svc.Delete(context.Background(), uuid.New())
  if !errors.Is(err, pkgerrors.ErrNotFound) {
    t.Fatalf("Delete: want ErrNotFound got %v", err)
  }
  if got := h.exercises.count(); got != 1 {
    t.Fatalf("rows: want=1 got=%d", got)
  }
  if got := h.vectors.pointCount(); got != 1 {
    t.Fatalf("vectors: want=1 got=%d", got)
  }
}

func TestExerciseSearchFiltersByName(t *testing.T) {
  h := newExerciseHarness(t)
  h.seedFull("wall-handstand")
  h.seedFull("pike-press")

  rows, err := h.svc.Search(context.Background(), "pike", 10)
  if err != nil {
    t.Fatalf("Search returned error: %v", err)
  }
  if len(rows) != 1 || rows[0].Name != "pike-press" {
    t.Fatalf("search hits: want=[pike-press] got=%v", names(rows))
  }
}

func TestExerciseBulkGetSkipsUnknownIDs(t *testing.T) {
  h := newExerciseHarness(t)
  row := h.seedFull("wall-handstand")

  rows, err := h.svc.BulkGet(context.Background(), []uuid.UUID{row.ID, uuid.New()})
  if err != nil {
    t.Fatalf("BulkGet returned error: %v", err)
  }
  if len(rows) != 1 || rows[0].ID != row.ID {
    t.Fatalf("bulk hits: want=[%s] got=%v", row.ID, names(rows))
  }
}

func names(rows []*types.Exercise) []string {
  out := make([]string, 0, len(rows))
  for _, row := range rows {
    out = append(out, row.Name)
  }
  return out
}
