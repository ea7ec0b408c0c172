package services

import (
  "context"
  "time"

  "golang.org/x/sync/semaphore"

  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const defaultPollInterval = 2 * time.Second

// IngestWorker polls the job table and runs claimed jobs on a bounded pool.
// Claiming uses SKIP LOCKED, so any number of processes can run workers
// against the same database without double-processing.
type IngestWorker struct {
  log          *logger.Logger
  jobRepo      repos.IngestJobRepo
  ingest       IngestService
  sem          *semaphore.Weighted
  maxParallel  int64
  pollInterval time.Duration
}

func NewIngestWorker(baseLog *logger.Logger, jobRepo repos.IngestJobRepo, ingest IngestService, maxParallel int) *IngestWorker {
  if maxParallel <= 0 {
    maxParallel = 1
  }
  return &IngestWorker{
    log:          baseLog.With("component", "IngestWorker"),
    jobRepo:      jobRepo,
    ingest:       ingest,
    sem:          semaphore.NewWeighted(int64(maxParallel)),
    maxParallel:  int64(maxParallel),
    pollInterval: defaultPollInterval,
  }
}

// Start launches the polling loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (w *IngestWorker) Start(ctx context.Context) {
  w.log.Info("ingest worker started", "max_parallel", w.maxParallel, "poll_interval", w.pollInterval.String())
  go w.loop(ctx)
}

func (w *IngestWorker) loop(ctx context.Context) {
  ticker := time.NewTicker(w.pollInterval)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      w.log.Info("ingest worker stopping")
      return
    case <-ticker.C:
      w.drainPending(ctx)
    }
  }
}

// drainPending claims jobs until the pool is full or the queue is empty.
func (w *IngestWorker) drainPending(ctx context.Context) {
  for w.sem.TryAcquire(1) {
    job, err := w.jobRepo.ClaimNextPending(dbctx.Context{Ctx: ctx})
    if err != nil {
      w.sem.Release(1)
      w.log.Warn("claim next pending failed", "error", err)
      return
    }
    if job == nil {
      w.sem.Release(1)
      return
    }
    go w.run(ctx, job)
  }
}

func (w *IngestWorker) run(ctx context.Context, job *types.IngestJob) {
  defer w.sem.Release(1)
  w.log.Info("job claimed", "job_id", job.JobID.String(), "url", job.URL)
  w.ingest.RunJob(ctx, job)
}

// Drain blocks until every in-flight job finishes or ctx expires. Meant for
// graceful shutdown after the polling context is cancelled.
func (w *IngestWorker) Drain(ctx context.Context) error {
  if err := w.sem.Acquire(ctx, w.maxParallel); err != nil {
    return err
  }
  w.sem.Release(w.maxParallel)
  return nil
}
