package services

import (
  "context"
  "sync"
  "testing"
  "time"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/types"
)

// recordingIngest implements IngestService for worker tests. RunJob blocks
// on gate when one is set, so a test can hold jobs in flight.
type recordingIngest struct {
  mu   sync.Mutex
  ran  []uuid.UUID
  gate chan struct{}
  done chan uuid.UUID
}

func (r *recordingIngest) EnqueueURL(_ context.Context, _ string) (*types.IngestJob, error) {
  return nil, nil
}

func (r *recordingIngest) RunJob(_ context.Context, job *types.IngestJob) {
  r.mu.Lock()
  r.ran = append(r.ran, job.JobID)
  r.mu.Unlock()
  if r.gate != nil {
    <-r.gate
  }
  if r.done != nil {
    r.done <- job.JobID
  }
}

func (r *recordingIngest) Cancel(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil }

func (r *recordingIngest) GetJob(_ context.Context, _ uuid.UUID) (*types.IngestJob, error) {
  return nil, nil
}

func (r *recordingIngest) ListJobs(_ context.Context, _ int) ([]*types.IngestJob, error) {
  return nil, nil
}

func (r *recordingIngest) runCount() int {
  r.mu.Lock()
  defer r.mu.Unlock()
  return len(r.ran)
}

func waitForRuns(t *testing.T, ingest *recordingIngest, want int) {
  t.Helper()
  deadline := time.Now().Add(2 * time.Second)
  for time.Now().Before(deadline) {
    if ingest.runCount() >= want {
      return
    }
    time.Sleep(5 * time.Millisecond)
  }
  t.Fatalf("runs: want=%d got=%d after 2s", want, ingest.runCount())
}

func seedPendingJob(t *testing.T, jobs *memJobRepo) *types.IngestJob {
  t.Helper()
  job, err := jobs.Create(dbc(), &types.IngestJob{URL: testReelURL, State: types.JobStatePending})
  if err != nil {
    t.Fatalf("create job: %v", err)
  }
  return job
}

func TestWorkerDrainPendingRunsAllJobs(t *testing.T) {
  jobs := newMemJobRepo()
  for i := 0; i < 3; i++ {
    seedPendingJob(t, jobs)
  }
  ingest := &recordingIngest{done: make(chan uuid.UUID, 3)}
  w := NewIngestWorker(newTestLogger(t), jobs, ingest, 4)

  w.drainPending(context.Background())

  for i := 0; i < 3; i++ {
    select {
    case <-ingest.done:
    case <-time.After(2 * time.Second):
      t.Fatalf("job %d never ran", i)
    }
  }

  drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
  defer cancel()
  if err := w.Drain(drainCtx); err != nil {
    t.Fatalf("Drain returned error: %v", err)
  }
  if got := ingest.runCount(); got != 3 {
    t.Fatalf("runs: want=3 got=%d", got)
  }
}

func TestWorkerHonorsParallelLimit(t *testing.T) {
  jobs := newMemJobRepo()
  seedPendingJob(t, jobs)
  second := seedPendingJob(t, jobs)

  gate := make(chan struct{})
  ingest := &recordingIngest{gate: gate}
  w := NewIngestWorker(newTestLogger(t), jobs, ingest, 1)

  w.drainPending(context.Background())
  waitForRuns(t, ingest, 1)
  if got := ingest.runCount(); got != 1 {
    t.Fatalf("runs while slot held: want=1 got=%d", got)
  }

  row, err := jobs.Get(dbc(), second.JobID)
  if err != nil {
    t.Fatalf("get second job: %v", err)
  }
  if row.State != types.JobStatePending {
    t.Fatalf("second job state: want=%q got=%q", types.JobStatePending, row.State)
  }

  close(gate)
  drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
  defer cancel()
  if err := w.Drain(drainCtx); err != nil {
    t.Fatalf("Drain returned error: %v", err)
  }

  w.drainPending(context.Background())
  waitForRuns(t, ingest, 2)

  drainCtx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
  defer cancel2()
  if err := w.Drain(drainCtx2); err != nil {
    t.Fatalf("second Drain returned error: %v", err)
  }
}

func TestWorkerDrainTimesOutOnStuckJob(t *testing.T) {
  jobs := newMemJobRepo()
  seedPendingJob(t, jobs)

  gate := make(chan struct{})
  ingest := &recordingIngest{gate: gate}
  w := NewIngestWorker(newTestLogger(t), jobs, ingest, 2)

  w.drainPending(context.Background())
  waitForRuns(t, ingest, 1)

  ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
  defer cancel()
  if err := w.Drain(ctx); err == nil {
    t.Fatalf("Drain: want deadline error, got nil")
  }
  close(gate)
}

func TestWorkerStartPicksUpQueuedJob(t *testing.T) {
  jobs := newMemJobRepo()
  created := seedPendingJob(t, jobs)

  ingest := &recordingIngest{done: make(chan uuid.UUID, 1)}
  w := NewIngestWorker(newTestLogger(t), jobs, ingest, 2)
  w.pollInterval = 10 * time.Millisecond

  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()
  w.Start(ctx)

  select {
  case id := <-ingest.done:
    if id != created.JobID {
      t.Fatalf("job id: want=%s got=%s", created.JobID, id)
    }
  case <-time.After(2 * time.Second):
    t.Fatalf("worker never ran the queued job")
  }

  cancel()
  drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
  defer drainCancel()
  if err := w.Drain(drainCtx); err != nil {
    t.Fatalf("Drain returned error: %v", err)
  }
}
