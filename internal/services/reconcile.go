package services

import (
  "context"
  "fmt"
  "io/fs"
  "os"
  "path"
  "path/filepath"
  "time"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const (
  // reconcileBatchSize is how many rows each database page loads.
  reconcileBatchSize = 500
  // reconcileScrollLimit is the vector store page size.
  reconcileScrollLimit = 256
  // reconcileGracePeriod protects files younger than this from the sweep.
  // A clip exists on disk before its row commits; deleting it mid-ingest
  // would fail the pipeline from the outside.
  reconcileGracePeriod = time.Hour
)

// ReconcileReport is one sweep's findings. Sample slices are capped; the
// counters are exact.
type ReconcileReport struct {
  DryRun bool `json:"dry_run"`

  ScannedRows    int `json:"scanned_rows"`
  ScannedFiles   int `json:"scanned_files"`
  ScannedVectors int `json:"scanned_vectors"`

  OrphanFiles   []string `json:"orphan_files,omitempty"`
  OrphanVectors []string `json:"orphan_vectors,omitempty"`

  RowsMissingClip   []uuid.UUID `json:"rows_missing_clip,omitempty"`
  RowsMissingVector []uuid.UUID `json:"rows_missing_vector,omitempty"`

  OrphanFileCount   int `json:"orphan_file_count"`
  OrphanVectorCount int `json:"orphan_vector_count"`
  DeletedFiles      int `json:"deleted_files"`
  DeletedVectors    int `json:"deleted_vectors"`

  StartedAt  time.Time `json:"started_at"`
  FinishedAt time.Time `json:"finished_at"`
}

const reconcileSampleCap = 100

// ReconcileService sweeps the three stores against each other. Rows are
// authoritative: a clip file or vector that no row references is garbage;
// a row pointing at a missing clip or vector is reported but never touched.
type ReconcileService interface {
  Sweep(ctx context.Context, dryRun bool) (*ReconcileReport, error)
}

type reconcileService struct {
  log          *logger.Logger
  exerciseRepo repos.ExerciseRepo
  vectors      qdrant.VectorStore
  contentRoot  string
}

func NewReconcileService(baseLog *logger.Logger, exerciseRepo repos.ExerciseRepo, vectors qdrant.VectorStore, contentRoot string) ReconcileService {
  return &reconcileService{
    log:          baseLog.With("service", "ReconcileService"),
    exerciseRepo: exerciseRepo,
    vectors:      vectors,
    contentRoot:  contentRoot,
  }
}

func (s *reconcileService) Sweep(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
  report := &ReconcileReport{DryRun: dryRun, StartedAt: time.Now()}

  refs, err := s.loadRowRefs(ctx, report)
  if err != nil {
    return nil, fmt.Errorf("load rows: %w", err)
  }

  if err := s.sweepFiles(ctx, report, refs, dryRun); err != nil {
    return nil, fmt.Errorf("sweep clip files: %w", err)
  }
  if err := s.sweepVectors(ctx, report, refs, dryRun); err != nil {
    return nil, fmt.Errorf("sweep vectors: %w", err)
  }

  report.FinishedAt = time.Now()
  s.log.Info("reconcile sweep finished",
    "dry_run", dryRun,
    "rows", report.ScannedRows,
    "files", report.ScannedFiles,
    "vectors", report.ScannedVectors,
    "orphan_files", report.OrphanFileCount,
    "orphan_vectors", report.OrphanVectorCount,
    "deleted_files", report.DeletedFiles,
    "deleted_vectors", report.DeletedVectors,
  )
  return report, nil
}

// rowRefs indexes what the database claims to own.
type rowRefs struct {
  clipPaths map[string]bool
  vectorIDs map[string]bool
  rowIDs    map[string]bool
}

func (s *reconcileService) loadRowRefs(ctx context.Context, report *ReconcileReport) (*rowRefs, error) {
  refs := &rowRefs{
    clipPaths: map[string]bool{},
    vectorIDs: map[string]bool{},
    rowIDs:    map[string]bool{},
  }

  err := s.exerciseRepo.ForEachBatch(dbctx.Context{Ctx: ctx}, reconcileBatchSize, func(rows []*types.Exercise) error {
    for _, row := range rows {
      report.ScannedRows++
      refs.rowIDs[row.ID.String()] = true
      refs.clipPaths[path.Clean(row.ClipPath)] = true
      if row.VectorID != nil {
        refs.vectorIDs[row.VectorID.String()] = true
      }

      if _, statErr := os.Stat(filepath.Join(s.contentRoot, filepath.FromSlash(row.ClipPath))); statErr != nil {
        if len(report.RowsMissingClip) < reconcileSampleCap {
          report.RowsMissingClip = append(report.RowsMissingClip, row.ID)
        }
        s.log.Warn("row references missing clip", "exercise_id", row.ID.String(), "clip_path", row.ClipPath)
      }
      if row.VectorID == nil && time.Since(row.CreatedAt) > reconcileGracePeriod {
        if len(report.RowsMissingVector) < reconcileSampleCap {
          report.RowsMissingVector = append(report.RowsMissingVector, row.ID)
        }
        s.log.Warn("row never linked a vector", "exercise_id", row.ID.String())
      }
    }
    return nil
  })
  if err != nil {
    return nil, err
  }
  return refs, nil
}

// sweepFiles walks the clips directory and removes files no row references.
// Files inside the grace period are skipped: they may belong to an ingest
// whose row has not committed yet.
func (s *reconcileService) sweepFiles(ctx context.Context, report *ReconcileReport, refs *rowRefs, dryRun bool) error {
  clipsDir := filepath.Join(s.contentRoot, clipsSubdir)
  if _, err := os.Stat(clipsDir); os.IsNotExist(err) {
    return nil
  }

  return filepath.WalkDir(clipsDir, func(p string, d fs.DirEntry, walkErr error) error {
    if walkErr != nil {
      return walkErr
    }
    if ctx.Err() != nil {
      return ctx.Err()
    }
    if d.IsDir() {
      return nil
    }
    report.ScannedFiles++

    rel, err := filepath.Rel(s.contentRoot, p)
    if err != nil {
      return err
    }
    relSlash := path.Clean(filepath.ToSlash(rel))
    if refs.clipPaths[relSlash] {
      return nil
    }

    info, err := d.Info()
    if err == nil && time.Since(info.ModTime()) < reconcileGracePeriod {
      return nil
    }

    report.OrphanFileCount++
    if len(report.OrphanFiles) < reconcileSampleCap {
      report.OrphanFiles = append(report.OrphanFiles, relSlash)
    }
    if dryRun {
      return nil
    }
    if rmErr := os.Remove(p); rmErr != nil {
      s.log.Warn("orphan file delete failed", "path", relSlash, "error", rmErr)
      return nil
    }
    report.DeletedFiles++
    s.log.Info("orphan file deleted", "path", relSlash)
    return nil
  })
}

// sweepVectors pages through the vector store and removes points the
// database does not claim. A point is live when a row links its id, or when
// its payload database_id names an existing row (the window between vector
// upsert and row linkage).
func (s *reconcileService) sweepVectors(ctx context.Context, report *ReconcileReport, refs *rowRefs, dryRun bool) error {
  offset := ""
  for {
    if ctx.Err() != nil {
      return ctx.Err()
    }
    points, next, err := s.vectors.Scroll(ctx, reconcileScrollLimit, offset)
    if err != nil {
      return err
    }

    var orphans []string
    for _, pt := range points {
      report.ScannedVectors++
      if refs.vectorIDs[pt.ID] {
        continue
      }
      if dbID, ok := pt.Payload["database_id"].(string); ok && refs.rowIDs[dbID] {
        continue
      }
      report.OrphanVectorCount++
      if len(report.OrphanVectors) < reconcileSampleCap {
        report.OrphanVectors = append(report.OrphanVectors, pt.ID)
      }
      orphans = append(orphans, pt.ID)
    }

    if !dryRun && len(orphans) > 0 {
      if err := s.vectors.Delete(ctx, orphans); err != nil {
        s.log.Warn("orphan vector delete failed", "count", len(orphans), "error", err)
      } else {
        report.DeletedVectors += len(orphans)
        s.log.Info("orphan vectors deleted", "count", len(orphans))
      }
    }

    if next == "" {
      return nil
    }
    offset = next
  }
}
