package services

import (
  "bytes"
  "context"
  "fmt"
  "os"
  "path/filepath"
  "sort"
  "strings"
  "sync"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/moveatlas/moveatlas-backend/internal/clients/localmedia"
  "github.com/moveatlas/moveatlas-backend/internal/clients/openai"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/analyze"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/download"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/urlx"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

func dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func newTestLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("logger.New returned error: %v", err)
  }
  t.Cleanup(log.Sync)
  return log
}

// memExerciseRepo is an in-memory ExerciseRepo that enforces the fingerprint
// uniqueness the real table carries.
type memExerciseRepo struct {
  mu    sync.Mutex
  rows  map[uuid.UUID]*types.Exercise
  order []uuid.UUID

  createErr         error
  updateVectorIDErr error
}

func newMemExerciseRepo() *memExerciseRepo {
  return &memExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
}

func (m *memExerciseRepo) Create(_ dbctx.Context, exercise *types.Exercise) (*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.createErr != nil {
    return nil, m.createErr
  }
  for _, row := range m.rows {
    if row.NormalizedURL == exercise.NormalizedURL &&
      row.CarouselIndex == exercise.CarouselIndex &&
      row.Name == exercise.Name {
      return nil, fmt.Errorf("%w: exercise fingerprint", pkgerrors.ErrDuplicate)
    }
  }
  cp := *exercise
  if cp.ID == uuid.Nil {
    cp.ID = uuid.New()
  }
  if cp.CreatedAt.IsZero() {
    cp.CreatedAt = time.Now()
  }
  m.rows[cp.ID] = &cp
  m.order = append(m.order, cp.ID)
  out := cp
  return &out, nil
}

func (m *memExerciseRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  row, ok := m.rows[id]
  if !ok {
    return nil, fmt.Errorf("%w: exercise %s", pkgerrors.ErrNotFound, id)
  }
  cp := *row
  return &cp, nil
}

func (m *memExerciseRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  out := make([]*types.Exercise, 0, len(ids))
  for _, id := range ids {
    if row, ok := m.rows[id]; ok {
      cp := *row
      out = append(out, &cp)
    }
  }
  return out, nil
}

func (m *memExerciseRepo) List(_ dbctx.Context, filter repos.ExerciseFilter) ([]*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  limit := filter.Limit
  if limit <= 0 {
    limit = 50
  }
  var out []*types.Exercise
  for _, id := range m.order {
    row := m.rows[id]
    if filter.NameContains != "" &&
      !strings.Contains(strings.ToLower(row.Name), strings.ToLower(filter.NameContains)) {
      continue
    }
    cp := *row
    out = append(out, &cp)
    if len(out) >= limit {
      break
    }
  }
  return out, nil
}

func (m *memExerciseRepo) FindByFingerprint(_ dbctx.Context, normalizedURL string, carouselIndex int, name string) (*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  for _, row := range m.rows {
    if row.NormalizedURL == normalizedURL && row.CarouselIndex == carouselIndex && row.Name == name {
      cp := *row
      return &cp, nil
    }
  }
  return nil, nil
}

func (m *memExerciseRepo) SearchByURL(_ dbctx.Context, normalizedURL string) ([]*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  var out []*types.Exercise
  for _, id := range m.order {
    if row := m.rows[id]; row.NormalizedURL == normalizedURL {
      cp := *row
      out = append(out, &cp)
    }
  }
  return out, nil
}

func (m *memExerciseRepo) UpdateVectorID(_ dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.updateVectorIDErr != nil {
    return m.updateVectorIDErr
  }
  row, ok := m.rows[id]
  if !ok {
    return fmt.Errorf("%w: exercise %s", pkgerrors.ErrNotFound, id)
  }
  v := vectorID
  row.VectorID = &v
  return nil
}

func (m *memExerciseRepo) Delete(_ dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  row, ok := m.rows[id]
  if !ok {
    return nil, fmt.Errorf("%w: exercise %s", pkgerrors.ErrNotFound, id)
  }
  delete(m.rows, id)
  for i, oid := range m.order {
    if oid == id {
      m.order = append(m.order[:i], m.order[i+1:]...)
      break
    }
  }
  cp := *row
  return &cp, nil
}

func (m *memExerciseRepo) ForEachBatch(_ dbctx.Context, batchSize int, fn func(rows []*types.Exercise) error) error {
  rows := m.snapshot()
  for start := 0; start < len(rows); start += batchSize {
    end := start + batchSize
    if end > len(rows) {
      end = len(rows)
    }
    if err := fn(rows[start:end]); err != nil {
      return err
    }
  }
  return nil
}

func (m *memExerciseRepo) snapshot() []*types.Exercise {
  m.mu.Lock()
  defer m.mu.Unlock()
  out := make([]*types.Exercise, 0, len(m.order))
  for _, id := range m.order {
    cp := *m.rows[id]
    out = append(out, &cp)
  }
  return out
}

func (m *memExerciseRepo) count() int {
  m.mu.Lock()
  defer m.mu.Unlock()
  return len(m.rows)
}

// memJobRepo is an in-memory IngestJobRepo with the same monotonic state
// machine as the real one.
type memJobRepo struct {
  mu    sync.Mutex
  jobs  map[uuid.UUID]*types.IngestJob
  order []uuid.UUID
}

func newMemJobRepo() *memJobRepo {
  return &memJobRepo{jobs: map[uuid.UUID]*types.IngestJob{}}
}

func (m *memJobRepo) Create(_ dbctx.Context, job *types.IngestJob) (*types.IngestJob, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  cp := *job
  if cp.JobID == uuid.Nil {
    cp.JobID = uuid.New()
  }
  now := time.Now()
  cp.CreatedAt = now
  cp.UpdatedAt = now
  m.jobs[cp.JobID] = &cp
  m.order = append(m.order, cp.JobID)
  out := cp
  return &out, nil
}

func (m *memJobRepo) Get(_ dbctx.Context, jobID uuid.UUID) (*types.IngestJob, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  job, ok := m.jobs[jobID]
  if !ok {
    return nil, fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
  }
  cp := *job
  return &cp, nil
}

func (m *memJobRepo) Start(_ dbctx.Context, jobID uuid.UUID) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  job, ok := m.jobs[jobID]
  if !ok {
    return fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
  }
  switch job.State {
  case types.JobStatePending:
    job.State = types.JobStateInProgress
    job.UpdatedAt = time.Now()
    return nil
  case types.JobStateInProgress:
    return nil
  default:
    return fmt.Errorf("%w: job %s is %s", pkgerrors.ErrConflict, jobID, job.State)
  }
}

func (m *memJobRepo) Finish(_ dbctx.Context, jobID uuid.UUID, state string, result datatypes.JSON) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  job, ok := m.jobs[jobID]
  if !ok {
    return fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
  }
  if job.State == types.JobStateDone || job.State == types.JobStateFailed {
    if job.State == state && bytes.Equal(job.Result, result) {
      return nil
    }
    return fmt.Errorf("%w: job %s already %s", pkgerrors.ErrConflict, jobID, job.State)
  }
  job.State = state
  job.Result = result
  job.UpdatedAt = time.Now()
  return nil
}

func (m *memJobRepo) ClaimNextPending(_ dbctx.Context) (*types.IngestJob, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  for _, id := range m.order {
    job := m.jobs[id]
    if job.State == types.JobStatePending {
      job.State = types.JobStateInProgress
      job.UpdatedAt = time.Now()
      cp := *job
      return &cp, nil
    }
  }
  return nil, nil
}

func (m *memJobRepo) RequestCancel(_ dbctx.Context, jobID uuid.UUID) (bool, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  job, ok := m.jobs[jobID]
  if !ok {
    return false, fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
  }
  if job.State == types.JobStateDone || job.State == types.JobStateFailed {
    return false, nil
  }
  job.CancelRequested = true
  job.UpdatedAt = time.Now()
  return true, nil
}

func (m *memJobRepo) IsCancelRequested(_ dbctx.Context, jobID uuid.UUID) (bool, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  job, ok := m.jobs[jobID]
  if !ok {
    return false, fmt.Errorf("%w: job %s", pkgerrors.ErrNotFound, jobID)
  }
  return job.CancelRequested, nil
}

func (m *memJobRepo) ListRecent(_ dbctx.Context, limit int) ([]*types.IngestJob, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  if limit <= 0 {
    limit = 50
  }
  out := make([]*types.IngestJob, 0, limit)
  for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
    cp := *m.jobs[m.order[i]]
    out = append(out, &cp)
  }
  return out, nil
}

// memVectorStore is an in-memory qdrant.VectorStore. Search serves canned
// hits set by the test; the point map backs Upsert/Delete/Scroll.
type memVectorStore struct {
  mu     sync.Mutex
  points map[string]qdrant.Point

  hits      []qdrant.Hit
  upsertErr error
  deleteErr error
  searchErr error
}

func newMemVectorStore() *memVectorStore {
  return &memVectorStore{points: map[string]qdrant.Point{}}
}

func (m *memVectorStore) Upsert(_ context.Context, points []qdrant.Point) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.upsertErr != nil {
    return m.upsertErr
  }
  for _, pt := range points {
    m.points[pt.ID] = pt
  }
  return nil
}

func (m *memVectorStore) Search(_ context.Context, _ []float32, limit int, scoreThreshold float64, _ map[string]any) ([]qdrant.Hit, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.searchErr != nil {
    return nil, m.searchErr
  }
  var out []qdrant.Hit
  for _, h := range m.hits {
    if h.Score >= scoreThreshold {
      out = append(out, h)
    }
    if len(out) >= limit {
      break
    }
  }
  return out, nil
}

func (m *memVectorStore) Delete(_ context.Context, ids []string) error {
  m.mu.Lock()
  defer m.mu.Unlock()
  if m.deleteErr != nil {
    return m.deleteErr
  }
  for _, id := range ids {
    delete(m.points, id)
  }
  return nil
}

func (m *memVectorStore) Scroll(_ context.Context, limit int, offset string) ([]qdrant.ScrollPoint, string, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  ids := make([]string, 0, len(m.points))
  for id := range m.points {
    ids = append(ids, id)
  }
  sort.Strings(ids)
  start := 0
  if offset != "" {
    for i, id := range ids {
      if id == offset {
        start = i
        break
      }
    }
  }
  end := start + limit
  if end > len(ids) {
    end = len(ids)
  }
  out := make([]qdrant.ScrollPoint, 0, end-start)
  for _, id := range ids[start:end] {
    out = append(out, qdrant.ScrollPoint{ID: id, Payload: m.points[id].Payload})
  }
  next := ""
  if end < len(ids) {
    next = ids[end]
  }
  return out, next, nil
}

func (m *memVectorStore) Info(_ context.Context) (*qdrant.CollectionInfo, error) {
  m.mu.Lock()
  defer m.mu.Unlock()
  return &qdrant.CollectionInfo{Points: int64(len(m.points)), VectorDim: 3, Distance: "cosine"}, nil
}

func (m *memVectorStore) pointCount() int {
  m.mu.Lock()
  defer m.mu.Unlock()
  return len(m.points)
}

// fakeAI implements openai.Client. Function fields override per call kind;
// unset kinds fail loudly so tests notice unexpected traffic.
type fakeAI struct {
  mu         sync.Mutex
  embedCalls [][]string

  embedFn      func(inputs []string) ([][]float32, error)
  generateJSON func(system, user, schemaName string) (map[string]any, error)
  generateText func(system, user string) (string, error)
  transcribeFn func(audioPath string) ([]openai.TranscriptSegment, error)
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
  f.mu.Lock()
  f.embedCalls = append(f.embedCalls, inputs)
  f.mu.Unlock()
  if f.embedFn != nil {
    return f.embedFn(inputs)
  }
  out := make([][]float32, len(inputs))
  for i := range inputs {
    out[i] = []float32{0.1, 0.2, 0.3}
  }
  return out, nil
}

func (f *fakeAI) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
  if f.generateJSON != nil {
    return f.generateJSON(system, user, schemaName)
  }
  return nil, fmt.Errorf("fakeAI: GenerateJSON not configured")
}

func (f *fakeAI) GenerateJSONWithImages(_ context.Context, system, user string, _ []openai.ImageInput, schemaName string, _ map[string]any) (map[string]any, error) {
  if f.generateJSON != nil {
    return f.generateJSON(system, user, schemaName)
  }
  return nil, fmt.Errorf("fakeAI: GenerateJSONWithImages not configured")
}

func (f *fakeAI) GenerateText(_ context.Context, system, user string) (string, error) {
  if f.generateText != nil {
    return f.generateText(system, user)
  }
  return "", fmt.Errorf("fakeAI: GenerateText not configured")
}

func (f *fakeAI) Transcribe(_ context.Context, audioPath string) ([]openai.TranscriptSegment, error) {
  if f.transcribeFn != nil {
    return f.transcribeFn(audioPath)
  }
  return nil, fmt.Errorf("fakeAI: Transcribe not configured")
}

func (f *fakeAI) embedCallCount() int {
  f.mu.Lock()
  defer f.mu.Unlock()
  return len(f.embedCalls)
}

// fakeEvents records emitted job events as "name" or "name:detail" strings.
type fakeEvents struct {
  mu    sync.Mutex
  names []string
}

func (f *fakeEvents) record(name string) {
  f.mu.Lock()
  defer f.mu.Unlock()
  f.names = append(f.names, name)
}

func (f *fakeEvents) Queued(_ uuid.UUID, _ string) { f.record("queued") }

func (f *fakeEvents) Progress(_ uuid.UUID, stage string, _ int, _ string) {
  f.record("progress:" + stage)
}

func (f *fakeEvents) Done(_ uuid.UUID, _ any) { f.record("done") }

func (f *fakeEvents) Failed(_ uuid.UUID, kind, _ string) { f.record("failed:" + kind) }

func (f *fakeEvents) Cancelled(_ uuid.UUID) { f.record("cancelled") }

func (f *fakeEvents) StartForwarder(_ context.Context) error { return nil }

func (f *fakeEvents) has(name string) bool {
  f.mu.Lock()
  defer f.mu.Unlock()
  for _, n := range f.names {
    if n == name {
      return true
    }
  }
  return false
}

// fakeMediaTools serves the probe/audio/cut calls the pipeline makes.
// CutClip writes a real file so the materializer's stat checks pass.
type fakeMediaTools struct {
  mu       sync.Mutex
  cutCalls int

  probeFn         func(mediaPath string) (*localmedia.ProbeResult, error)
  cutFn           func(videoPath string, start, end float64, outPath string) error
  extractAudioErr error
}

func (f *fakeMediaTools) AssertReady(_ context.Context) error { return nil }

func (f *fakeMediaTools) Probe(_ context.Context, mediaPath string) (*localmedia.ProbeResult, error) {
  if f.probeFn != nil {
    return f.probeFn(mediaPath)
  }
  return &localmedia.ProbeResult{
    DurationSeconds: 60,
    SizeBytes:       1 << 20,
    HasVideo:        true,
    HasAudio:        true,
    Width:           1080,
    Height:          1920,
    VideoCodec:      "h264",
    Container:       "mp4",
  }, nil
}

func (f *fakeMediaTools) ExtractAudio(_ context.Context, _ string, outPath string, _ localmedia.AudioExtractOptions) (string, error) {
  if f.extractAudioErr != nil {
    return "", f.extractAudioErr
  }
  if err := os.WriteFile(outPath, []byte("audio"), 0o644); err != nil {
    return "", err
  }
  return outPath, nil
}

func (f *fakeMediaTools) ExportFrames(_ context.Context, _ string, _ string, _ localmedia.FrameExportOptions) ([]string, error) {
  return nil, nil
}

func (f *fakeMediaTools) CutClip(_ context.Context, videoPath string, startSec, endSec float64, outPath string) error {
  f.mu.Lock()
  f.cutCalls++
  f.mu.Unlock()
  if f.cutFn != nil {
    return f.cutFn(videoPath, startSec, endSec, outPath)
  }
  return os.WriteFile(outPath, []byte("clip bytes"), 0o644)
}

func (f *fakeMediaTools) cutCount() int {
  f.mu.Lock()
  defer f.mu.Unlock()
  return f.cutCalls
}

type fakeTranscriber struct {
  segs []transcribe.Segment
  err  error
}

func (f *fakeTranscriber) Name() string { return "fake_transcriber" }

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) ([]transcribe.Segment, error) {
  if f.err != nil {
    return nil, f.err
  }
  return f.segs, nil
}

type fakeExtractor struct {
  frames []keyframes.Frame
  err    error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ string) ([]keyframes.Frame, error) {
  if f.err != nil {
    return nil, f.err
  }
  return f.frames, nil
}

// fakeAnalyzer answers with fn, or with a canned two-candidate result.
type fakeAnalyzer struct {
  fn func(ctx context.Context, frames []keyframes.Frame, transcript []transcribe.Segment, meta analyze.Context) ([]analyze.Candidate, error)
}

func (f *fakeAnalyzer) Name() string { return "fake_vision" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, frames []keyframes.Frame, transcript []transcribe.Segment, meta analyze.Context) ([]analyze.Candidate, error) {
  if f.fn != nil {
    return f.fn(ctx, frames, transcript, meta)
  }
  return defaultCandidates(), nil
}

func defaultCandidates() []analyze.Candidate {
  level := 6
  intensity := 7
  return []analyze.Candidate{
    {
      Name:         "Wall Handstand Hold",
      Start:        5,
      End:          25,
      HowTo:        "Kick up against the wall and hold a straight line",
      Benefits:     "Shoulder strength and balance",
      Counteracts:  "Desk posture",
      RoundsReps:   "3 rounds of 30 seconds",
      FitnessLevel: &level,
      Intensity:    &intensity,
      Confidence:   0.9,
    },
    {
      Name:         "Pike Press",
      Start:        30,
      End:          50,
      HowTo:        "From a pike position press the floor away",
      Benefits:     "Pressing strength",
      Counteracts:  "Weak overhead position",
      RoundsReps:   "3 sets of 8",
      FitnessLevel: &level,
      Intensity:    &intensity,
      Confidence:   0.85,
    },
  }
}

// fakeDownloader writes media files into destDir via fn.
type fakeDownloader struct {
  mu       sync.Mutex
  calls    int
  platform urlx.Platform
  fn       func(destDir string) (*download.Result, error)
}

func (f *fakeDownloader) Platform() urlx.Platform { return f.platform }

func (f *fakeDownloader) Download(_ context.Context, _ string, destDir string) (*download.Result, error) {
  f.mu.Lock()
  f.calls++
  f.mu.Unlock()
  return f.fn(destDir)
}

func (f *fakeDownloader) callCount() int {
  f.mu.Lock()
  defer f.mu.Unlock()
  return f.calls
}

func writeMediaFile(t *testing.T, dir, name string) string {
  t.Helper()
  p := filepath.Join(dir, name)
  if err := os.WriteFile(p, []byte("fake media"), 0o644); err != nil {
    t.Fatalf("write media file: %v", err)
  }
  return p
}
