package services

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "os"
  "path"
  "path/filepath"
  "strconv"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/moveatlas/moveatlas-backend/internal/clients/localmedia"
  "github.com/moveatlas/moveatlas-backend/internal/clients/openai"
  "github.com/moveatlas/moveatlas-backend/internal/clients/redis"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/analyze"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/clips"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/download"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/fault"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/segments"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
  "github.com/moveatlas/moveatlas-backend/internal/ingestion/urlx"
  "github.com/moveatlas/moveatlas-backend/internal/observability"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/dbctx"
  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
  "github.com/moveatlas/moveatlas-backend/internal/pkg/pointers"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
  "github.com/moveatlas/moveatlas-backend/internal/repos"
  "github.com/moveatlas/moveatlas-backend/internal/types"
)

const (
  // clipsSubdir is where materialized clips live under the content root.
  // Rows store the path relative to the content root, forward slashes.
  clipsSubdir = "clips"

  // downloadAttempts bounds the retry loop around the downloader. Only
  // network-kind failures are retried; not-found and auth are final.
  downloadAttempts = 3

  // rollbackTimeout caps the detached cleanup writes that run after a
  // persistence step fails. Cleanup must not inherit a dead job context.
  rollbackTimeout = 15 * time.Second

  EntryStatusCreated          = "created"
  EntryStatusDuplicateSkipped = "duplicate_skipped"
)

// IngestEntry is one per-segment line in a finished job's result payload,
// ordered the way segments were persisted.
type IngestEntry struct {
  ID            *uuid.UUID `json:"id,omitempty"`
  Name          string     `json:"name"`
  ClipPath      string     `json:"clip_path,omitempty"`
  StartTime     float64    `json:"start_time"`
  EndTime       float64    `json:"end_time"`
  CarouselIndex int        `json:"carousel_index"`
  Status        string     `json:"status"`
}

// IngestResult is the terminal payload written to a done job.
type IngestResult struct {
  URL     string        `json:"url"`
  Entries []IngestEntry `json:"entries"`
  Created int           `json:"created"`
  Skipped int           `json:"skipped"`
}

// IngestFailure is the terminal payload written to a failed job.
type IngestFailure struct {
  ErrorKind string `json:"error_kind"`
  Message   string `json:"message"`
}

// IngestConfig carries the filesystem and timing knobs of the pipeline.
type IngestConfig struct {
  // ContentRoot is the durable storage root for clip files.
  ContentRoot string
  // TempRoot hosts the per-job scratch trees (pipeline_<job_id>).
  TempRoot string
  // RequestTimeout bounds every individual external call.
  RequestTimeout time.Duration
  // LockTTL is the lease on the per-URL ingest lock.
  LockTTL time.Duration
}

func (c IngestConfig) withDefaults() IngestConfig {
  if c.RequestTimeout <= 0 {
    c.RequestTimeout = 120 * time.Second
  }
  if c.LockTTL <= 0 {
    c.LockTTL = 10 * time.Minute
  }
  if c.TempRoot == "" {
    c.TempRoot = os.TempDir()
  }
  return c
}

// IngestService owns the video-to-exercise pipeline: enqueue a URL, run the
// claimed job through download, transcription, analysis and persistence, and
// record the terminal outcome on the job row.
type IngestService interface {
  EnqueueURL(ctx context.Context, rawURL string) (*types.IngestJob, error)
  RunJob(ctx context.Context, job *types.IngestJob)
  Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
  GetJob(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error)
  ListJobs(ctx context.Context, limit int) ([]*types.IngestJob, error)
}

type ingestService struct {
  log *logger.Logger

  jobRepo      repos.IngestJobRepo
  exerciseRepo repos.ExerciseRepo

  registry     *download.Registry
  media        localmedia.MediaTools
  transcriber  transcribe.Transcriber
  frames       keyframes.Extractor
  analyzer     analyze.Analyzer
  fallback     analyze.Analyzer
  ai           openai.Client
  vectors      qdrant.VectorStore
  materializer *clips.Materializer

  lock   redis.IngestLock // nil disables the single-flight lease
  events JobEventService

  cfg IngestConfig
}

func NewIngestService(
  baseLog *logger.Logger,
  jobRepo repos.IngestJobRepo,
  exerciseRepo repos.ExerciseRepo,
  registry *download.Registry,
  media localmedia.MediaTools,
  transcriber transcribe.Transcriber,
  frames keyframes.Extractor,
  analyzer analyze.Analyzer,
  ai openai.Client,
  vectors qdrant.VectorStore,
  materializer *clips.Materializer,
  lock redis.IngestLock,
  events JobEventService,
  cfg IngestConfig,
) (IngestService, error) {
  if baseLog == nil {
    return nil, fmt.Errorf("logger required")
  }
  if jobRepo == nil || exerciseRepo == nil {
    return nil, fmt.Errorf("repos required")
  }
  if registry == nil || media == nil || transcriber == nil || frames == nil || analyzer == nil {
    return nil, fmt.Errorf("pipeline stages required")
  }
  if ai == nil || vectors == nil || materializer == nil {
    return nil, fmt.Errorf("persistence collaborators required")
  }
  if events == nil {
    return nil, fmt.Errorf("job events required")
  }
  return &ingestService{
    log:          baseLog.With("service", "IngestService"),
    jobRepo:      jobRepo,
    exerciseRepo: exerciseRepo,
    registry:     registry,
    media:        media,
    transcriber:  transcriber,
    frames:       frames,
    analyzer:     analyzer,
    fallback:     analyze.NewFallback(baseLog),
    ai:           ai,
    vectors:      vectors,
    materializer: materializer,
    lock:         lock,
    events:       events,
    cfg:          cfg.withDefaults(),
  }, nil
}

// EnqueueURL canonicalizes the URL, rejects unsupported sources up front and
// creates a pending job for the worker pool to claim. The job row stores the
// normalized URL so every later stage sees the canonical form.
func (s *ingestService) EnqueueURL(ctx context.Context, rawURL string) (*types.IngestJob, error) {
  normalized, err := urlx.Normalize(rawURL)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
  }
  if urlx.Classify(normalized) == urlx.ClassUnsupported {
    return nil, fmt.Errorf("%w: unsupported video source: %s", pkgerrors.ErrInvalidArgument, normalized)
  }

  job := &types.IngestJob{
    JobID: uuid.New(),
    URL:   normalized,
    State: types.JobStatePending,
  }
  created, err := s.jobRepo.Create(dbctx.Context{Ctx: ctx}, job)
  if err != nil {
    return nil, fmt.Errorf("create job: %w", err)
  }

  s.events.Queued(created.JobID, created.URL)
  s.log.Info("job enqueued", "job_id", created.JobID.String(), "url", created.URL)
  return created, nil
}

// Cancel flags a live job. The pipeline notices between stages; terminal jobs
// report false.
func (s *ingestService) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
  return s.jobRepo.RequestCancel(dbctx.Context{Ctx: ctx}, jobID)
}

func (s *ingestService) GetJob(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error) {
  return s.jobRepo.Get(dbctx.Context{Ctx: ctx}, jobID)
}

func (s *ingestService) ListJobs(ctx context.Context, limit int) ([]*types.IngestJob, error) {
  return s.jobRepo.ListRecent(dbctx.Context{Ctx: ctx}, limit)
}

// RunJob drives one claimed job to a terminal state. It never returns an
// error: every outcome, including panics, ends as a done/failed row plus an
// event, so the worker loop stays trivial.
func (s *ingestService) RunJob(ctx context.Context, job *types.IngestJob) {
  log := s.log.With("job_id", job.JobID.String(), "url", job.URL)

  ctx, span := observability.StartSpan(ctx, "ingest.run_job", "job_id", job.JobID.String(), "url", job.URL)
  defer span.End()

  defer func() {
    if r := recover(); r != nil {
      log.Error("pipeline panic", "panic", fmt.Sprintf("%v", r))
      s.finishFailed(log, job.JobID, fault.New(fault.KindInternal, "pipeline", fmt.Sprintf("panic: %v", r)))
    }
  }()

  normalized, err := urlx.Normalize(job.URL)
  if err != nil {
    s.finishFailed(log, job.JobID, fault.Wrap(fault.KindInputInvalid, "canonicalize", err))
    return
  }
  if urlx.Classify(normalized) == urlx.ClassUnsupported {
    s.finishFailed(log, job.JobID, fault.Newf(fault.KindInputInvalid, "canonicalize", "unsupported video source: %s", normalized))
    return
  }

  if s.cancelled(ctx, job.JobID) {
    s.finishCancelled(log, job.JobID)
    return
  }

  // Best-effort single-flight per URL. Losing the race only wastes work:
  // the fingerprint unique index stays the hard duplicate guarantee.
  if s.lock != nil {
    token, ok, lockErr := s.lock.Acquire(ctx, normalized, s.cfg.LockTTL)
    switch {
    case lockErr != nil:
      log.Warn("ingest lock unavailable, proceeding without lease", "error", lockErr)
    case !ok:
      log.Warn("concurrent ingest in flight for url, proceeding; fingerprint index will dedupe")
    default:
      defer func() {
        rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        if relErr := s.lock.Release(rctx, normalized, token); relErr != nil {
          log.Warn("ingest lock release failed", "error", relErr)
        }
      }()
    }
  }

  workDir := filepath.Join(s.cfg.TempRoot, "pipeline_"+job.JobID.String())
  if err := os.MkdirAll(workDir, 0o755); err != nil {
    s.finishFailed(log, job.JobID, fault.Wrap(fault.KindInternal, "workspace", err))
    return
  }
  defer func() {
    if rmErr := os.RemoveAll(workDir); rmErr != nil {
      log.Warn("temp workspace cleanup failed", "dir", workDir, "error", rmErr)
    }
  }()

  s.events.Progress(job.JobID, "download", 10, "fetching media")
  result, err := s.downloadWithRetry(ctx, log, normalized, workDir)
  if err != nil {
    s.finishFailed(log, job.JobID, err)
    return
  }
  if len(result.MediaFiles) == 0 {
    s.finishFailed(log, job.JobID, fault.New(fault.KindDownloadFailed, "download", "downloader returned no media files"))
    return
  }

  platform := urlx.PlatformOf(normalized)
  itemCount := len(result.MediaFiles)
  log.Info("download complete", "platform", string(platform), "items", itemCount, "title", result.Metadata.Title)

  var entries []IngestEntry
  var itemFaults []error

  for i, mediaPath := range result.MediaFiles {
    index := i + 1
    if s.cancelled(ctx, job.JobID) {
      s.finishCancelled(log, job.JobID)
      return
    }

    pct := 20 + (70*i)/itemCount
    s.events.Progress(job.JobID, "process", pct, fmt.Sprintf("processing item %d of %d", index, itemCount))

    itemEntries, itemErr := s.processItem(ctx, log, job, itemInput{
      normalizedURL: normalized,
      platform:      platform,
      metadata:      result.Metadata,
      mediaPath:     mediaPath,
      workDir:       workDir,
      index:         index,
      count:         itemCount,
    })
    if itemErr != nil {
      if fault.KindOf(itemErr) == fault.KindCancelled {
        s.finishCancelled(log, job.JobID)
        return
      }
      // Carousel siblings are isolated from each other: one broken item
      // does not abandon the rest of the post.
      itemFaults = append(itemFaults, itemErr)
      log.Warn("carousel item failed", "carousel_index", index, "error", itemErr)
      continue
    }
    entries = append(entries, itemEntries...)
  }

  if len(itemFaults) == len(result.MediaFiles) && len(itemFaults) > 0 {
    s.finishFailed(log, job.JobID, itemFaults[0])
    return
  }

  res := IngestResult{URL: normalized, Entries: entries}
  if res.Entries == nil {
    res.Entries = []IngestEntry{}
  }
  for _, e := range entries {
    switch e.Status {
    case EntryStatusCreated:
      res.Created++
    case EntryStatusDuplicateSkipped:
      res.Skipped++
    }
  }

  s.finishDone(log, job.JobID, res)
}

type itemInput struct {
  normalizedURL string
  platform      urlx.Platform
  metadata      download.Metadata
  mediaPath     string
  workDir       string
  index         int
  count         int
}

// processItem runs one media file through probe, transcription, keyframes,
// analysis, normalization and persistence. Transcription and keyframe
// failures degrade rather than fail; an item fails only when the media is
// unreadable or a segment cannot be persisted.
func (s *ingestService) processItem(ctx context.Context, log *logger.Logger, job *types.IngestJob, in itemInput) ([]IngestEntry, error) {
  log = log.With("carousel_index", in.index)

  ctx, span := observability.StartSpan(ctx, "ingest.process_item", "carousel_index", strconv.Itoa(in.index))
  defer span.End()
  stage := fmt.Sprintf("item %d", in.index)

  probe, err := s.probeItem(ctx, in.mediaPath)
  if err != nil {
    return nil, fault.Wrap(fault.KindDecodeFailed, stage, err)
  }

  transcript := s.transcriptFor(ctx, log, in)
  frames := s.framesFor(ctx, log, in)

  meta := analyze.Context{
    Platform:      string(in.platform),
    CarouselIndex: in.index,
    CarouselCount: in.count,
    FirstIsHook:   in.index == 1 && in.count > 1,
    Title:         in.metadata.Title,
    Description:   in.metadata.Description,
    Tags:          in.metadata.Tags,
    Uploader:      in.metadata.Uploader,
    DurationSec:   probe.DurationSeconds,
  }

  candidates, err := s.analyzeItem(ctx, log, frames, transcript, meta)
  if err != nil {
    if ctx.Err() != nil {
      return nil, fault.Wrap(fault.KindCancelled, stage, ctx.Err())
    }
    return nil, fault.Wrap(fault.KindAnalyzeFailed, stage, err)
  }

  normalized := segments.Normalize(candidates, probe.DurationSeconds)
  log.Info("analysis complete", "candidates", len(candidates), "segments", len(normalized))
  if len(normalized) == 0 {
    // A hook slide or exercise-free item legitimately yields nothing.
    return nil, nil
  }

  entries := make([]IngestEntry, 0, len(normalized))
  for _, cand := range normalized {
    if s.cancelled(ctx, job.JobID) {
      return nil, fault.New(fault.KindCancelled, stage, "cancel requested")
    }
    entry, perr := s.persistSegment(ctx, log, job, in, cand)
    if perr != nil {
      return nil, perr
    }
    entries = append(entries, entry)
  }
  return entries, nil
}

func (s *ingestService) probeItem(ctx context.Context, mediaPath string) (*localmedia.ProbeResult, error) {
  cctx, cancel := s.callCtx(ctx)
  defer cancel()
  probe, err := s.media.Probe(cctx, mediaPath)
  if err != nil {
    return nil, fmt.Errorf("probe media: %w", err)
  }
  if !probe.HasVideo {
    return nil, fmt.Errorf("media has no readable video stream")
  }
  if probe.DurationSeconds <= 0 {
    return nil, fmt.Errorf("media has no readable duration")
  }
  return probe, nil
}

// transcriptFor extracts the audio track and transcribes it. Every failure
// mode, including audio-less video and low-signal captions, degrades to an
// empty transcript so the analyzer runs vision-only.
func (s *ingestService) transcriptFor(ctx context.Context, log *logger.Logger, in itemInput) []transcribe.Segment {
  audioPath := filepath.Join(in.workDir, fmt.Sprintf("audio_%d.wav", in.index))

  ectx, ecancel := s.callCtx(ctx)
  defer ecancel()
  if _, err := s.media.ExtractAudio(ectx, in.mediaPath, audioPath, localmedia.AudioExtractOptions{
    SampleRateHz: 16000,
    Channels:     1,
    Format:       "wav",
  }); err != nil {
    log.Warn("audio extraction failed, continuing without transcript", "error", err)
    return nil
  }

  tctx, tcancel := s.callCtx(ctx)
  defer tcancel()
  segs, err := s.transcriber.Transcribe(tctx, audioPath)
  if err != nil {
    log.Warn("transcription failed, continuing without transcript", "transcriber", s.transcriber.Name(), "error", err)
    return nil
  }
  if !transcribe.Usable(segs) {
    log.Info("transcript below quality floor, treating as empty", "segments", len(segs))
    return nil
  }
  return segs
}

func (s *ingestService) framesFor(ctx context.Context, log *logger.Logger, in itemInput) []keyframes.Frame {
  framesDir := filepath.Join(in.workDir, fmt.Sprintf("frames_%d", in.index))

  fctx, cancel := s.callCtx(ctx)
  defer cancel()
  frames, err := s.frames.Extract(fctx, in.mediaPath, framesDir)
  if err != nil {
    log.Warn("keyframe extraction failed, continuing without frames", "error", err)
    return nil
  }
  return frames
}

// analyzeItem tries the primary analyzer and falls back to transcript keyword
// matching when it errors. Zero candidates from either path is a valid
// outcome, not an error.
func (s *ingestService) analyzeItem(ctx context.Context, log *logger.Logger, frames []keyframes.Frame, transcript []transcribe.Segment, meta analyze.Context) ([]analyze.Candidate, error) {
  actx, cancel := s.callCtx(ctx)
  defer cancel()
  candidates, err := s.analyzer.Analyze(actx, frames, transcript, meta)
  if err == nil {
    return candidates, nil
  }
  if ctx.Err() != nil {
    return nil, err
  }

  log.Warn("analyzer failed, using transcript keyword fallback", "analyzer", s.analyzer.Name(), "error", err)
  fctx, fcancel := s.callCtx(ctx)
  defer fcancel()
  return s.fallback.Analyze(fctx, frames, transcript, meta)
}

// persistSegment runs the four-step dual-store sequence for one normalized
// segment: clip file, metadata row, vector entry, row linkage. Each failure
// unwinds everything the earlier steps created so no half-persisted exercise
// survives.
func (s *ingestService) persistSegment(ctx context.Context, log *logger.Logger, job *types.IngestJob, in itemInput, cand analyze.Candidate) (IngestEntry, error) {
  ctx, span := observability.StartSpan(ctx, "ingest.persist_segment", "name", cand.Name)
  defer span.End()

  stage := fmt.Sprintf("persist %q", cand.Name)
  entry := IngestEntry{
    Name:          cand.Name,
    StartTime:     cand.Start,
    EndTime:       cand.End,
    CarouselIndex: in.index,
  }

  existing, err := s.exerciseRepo.FindByFingerprint(dbctx.Context{Ctx: ctx}, in.normalizedURL, in.index, cand.Name)
  if err != nil {
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("fingerprint lookup: %w", err))
  }
  if existing != nil {
    log.Info("segment already ingested, skipping", "name", cand.Name, "exercise_id", existing.ID.String())
    entry.ID = &existing.ID
    entry.ClipPath = existing.ClipPath
    entry.Status = EntryStatusDuplicateSkipped
    return entry, nil
  }

  ext := filepath.Ext(in.mediaPath)
  if ext == "" {
    ext = ".mp4"
  }
  filename := clips.Filename(cand.Name, in.normalizedURL, cand.Start, ext)
  relPath := path.Join(clipsSubdir, filename)
  absPath := filepath.Join(s.cfg.ContentRoot, clipsSubdir, filename)
  if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("clip dir: %w", err))
  }

  // Step 1: cut the clip. The materializer removes its own partial output.
  mctx, mcancel := s.callCtx(ctx)
  err = s.materializer.Materialize(mctx, in.mediaPath, cand.Start, cand.End, absPath)
  mcancel()
  if err != nil {
    if ctx.Err() != nil {
      return entry, fault.Wrap(fault.KindCancelled, stage, ctx.Err())
    }
    return entry, fault.Wrap(fault.KindMaterializeFailed, stage, err)
  }

  // Step 2: metadata row with no vector linked yet.
  row := &types.Exercise{
    ID:            uuid.New(),
    URL:           job.URL,
    NormalizedURL: in.normalizedURL,
    CarouselIndex: in.index,
    Name:          cand.Name,
    ClipPath:      relPath,
    StartTime:     cand.Start,
    EndTime:       cand.End,
    HowTo:         optionalText(cand.HowTo),
    Benefits:      optionalText(cand.Benefits),
    Counteracts:   optionalText(cand.Counteracts),
    RoundsReps:    optionalText(cand.RoundsReps),
    FitnessLevel:  cand.FitnessLevel,
    Intensity:     cand.Intensity,
  }
  created, err := s.exerciseRepo.Create(dbctx.Context{Ctx: ctx}, row)
  if err != nil {
    s.removeClip(log, absPath)
    if errors.Is(err, pkgerrors.ErrDuplicate) {
      // Lost a race with a concurrent ingest of the same post.
      log.Info("segment persisted concurrently elsewhere, skipping", "name", cand.Name)
      entry.Status = EntryStatusDuplicateSkipped
      return entry, nil
    }
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("insert row: %w", err))
  }

  // Step 3: embed and upsert the vector, carrying the row id in the payload.
  vecs, err := s.embedCandidate(ctx, cand)
  if err != nil {
    s.rollbackRow(log, created.ID)
    s.removeClip(log, absPath)
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("embed: %w", err))
  }
  vectorID := uuid.New()
  point := qdrant.Point{
    ID:      vectorID.String(),
    Values:  vecs,
    Payload: vectorPayload(created, cand),
  }
  uctx, ucancel := s.callCtx(ctx)
  err = s.vectors.Upsert(uctx, []qdrant.Point{point})
  ucancel()
  if err != nil {
    s.rollbackRow(log, created.ID)
    s.removeClip(log, absPath)
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("vector upsert: %w", err))
  }

  // Step 4: link the row to its vector. On failure the vector goes too.
  if err := s.exerciseRepo.UpdateVectorID(dbctx.Context{Ctx: ctx}, created.ID, vectorID); err != nil {
    s.rollbackVector(log, vectorID)
    s.rollbackRow(log, created.ID)
    s.removeClip(log, absPath)
    return entry, fault.Wrap(fault.KindPersistenceFailed, stage, fmt.Errorf("link vector: %w", err))
  }

  log.Info("exercise persisted",
    "exercise_id", created.ID.String(),
    "name", created.Name,
    "clip_path", relPath,
    "start", cand.Start,
    "end", cand.End,
  )
  entry.ID = &created.ID
  entry.ClipPath = relPath
  entry.Status = EntryStatusCreated
  return entry, nil
}

func (s *ingestService) embedCandidate(ctx context.Context, cand analyze.Candidate) ([]float32, error) {
  ectx, cancel := s.callCtx(ctx)
  defer cancel()
  vecs, err := s.ai.Embed(ectx, []string{embeddingText(cand)})
  if err != nil {
    return nil, err
  }
  if len(vecs) != 1 || len(vecs[0]) == 0 {
    return nil, fmt.Errorf("embedding response had %d vectors", len(vecs))
  }
  return vecs[0], nil
}

// downloadWithRetry resolves the downloader for the URL and retries transient
// failures with exponential backoff. Unsupported URLs are the caller's fault;
// everything else is a download failure.
func (s *ingestService) downloadWithRetry(ctx context.Context, log *logger.Logger, normalizedURL, workDir string) (*download.Result, error) {
  dl, err := s.registry.ForURL(normalizedURL)
  if err != nil {
    return nil, fault.Wrap(fault.KindInputInvalid, "download", err)
  }

  var lastErr error
  for attempt := 1; attempt <= downloadAttempts; attempt++ {
    dctx, cancel := s.callCtx(ctx)
    result, dlErr := dl.Download(dctx, normalizedURL, workDir)
    cancel()
    if dlErr == nil {
      return result, nil
    }
    lastErr = dlErr

    if ctx.Err() != nil {
      return nil, fault.Wrap(fault.KindCancelled, "download", ctx.Err())
    }
    kind := download.KindOf(dlErr)
    if kind != download.KindNetwork {
      break
    }
    if attempt < downloadAttempts {
      backoff := time.Duration(1<<uint(attempt-1)) * time.Second
      log.Warn("download attempt failed, retrying", "attempt", attempt, "backoff", backoff.String(), "error", dlErr)
      select {
      case <-ctx.Done():
        return nil, fault.Wrap(fault.KindCancelled, "download", ctx.Err())
      case <-time.After(backoff):
      }
    }
  }

  if download.KindOf(lastErr) == download.KindUnsupported {
    return nil, fault.Wrap(fault.KindInputInvalid, "download", lastErr)
  }
  return nil, fault.Wrap(fault.KindDownloadFailed, "download", lastErr)
}

// cancelled reports whether the pipeline should stop: either the process is
// shutting down or the job row carries a cancel flag.
func (s *ingestService) cancelled(ctx context.Context, jobID uuid.UUID) bool {
  if ctx.Err() != nil {
    return true
  }
  requested, err := s.jobRepo.IsCancelRequested(dbctx.Context{Ctx: ctx}, jobID)
  if err != nil {
    s.log.Warn("cancel flag lookup failed", "job_id", jobID.String(), "error", err)
    return false
  }
  return requested
}

func (s *ingestService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
  return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// detachedCtx is for terminal writes and rollbacks that must land even when
// the job context is already dead.
func detachedCtx() (context.Context, context.CancelFunc) {
  return context.WithTimeout(context.Background(), rollbackTimeout)
}

func (s *ingestService) finishDone(log *logger.Logger, jobID uuid.UUID, result IngestResult) {
  payload, err := json.Marshal(result)
  if err != nil {
    log.Error("marshal job result failed", "error", err)
    payload = []byte(`{}`)
  }
  dctx, cancel := detachedCtx()
  defer cancel()
  if err := s.jobRepo.Finish(dbctx.Context{Ctx: dctx}, jobID, types.JobStateDone, datatypes.JSON(payload)); err != nil {
    log.Error("finish job failed", "state", types.JobStateDone, "error", err)
    return
  }
  log.Info("job done", "created", result.Created, "skipped", result.Skipped)
  s.events.Done(jobID, result)
}

func (s *ingestService) finishFailed(log *logger.Logger, jobID uuid.UUID, cause error) {
  kind := fault.KindOf(cause)
  msg := fault.Message(cause)
  payload, err := json.Marshal(IngestFailure{ErrorKind: string(kind), Message: msg})
  if err != nil {
    payload = []byte(`{}`)
  }
  dctx, cancel := detachedCtx()
  defer cancel()
  if err := s.jobRepo.Finish(dbctx.Context{Ctx: dctx}, jobID, types.JobStateFailed, datatypes.JSON(payload)); err != nil {
    log.Error("finish job failed", "state", types.JobStateFailed, "error", err)
    return
  }
  log.Warn("job failed", "error_kind", string(kind), "message", msg)
  s.events.Failed(jobID, string(kind), msg)
}

func (s *ingestService) finishCancelled(log *logger.Logger, jobID uuid.UUID) {
  payload, _ := json.Marshal(IngestFailure{ErrorKind: string(fault.KindCancelled), Message: "cancel requested"})
  dctx, cancel := detachedCtx()
  defer cancel()
  if err := s.jobRepo.Finish(dbctx.Context{Ctx: dctx}, jobID, types.JobStateFailed, datatypes.JSON(payload)); err != nil {
    log.Error("finish job failed", "state", types.JobStateFailed, "error", err)
    return
  }
  log.Info("job cancelled")
  s.events.Cancelled(jobID)
}

func (s *ingestService) removeClip(log *logger.Logger, absPath string) {
  if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
    log.Warn("clip rollback failed, sweep will collect it", "path", absPath, "error", err)
  }
}

func (s *ingestService) rollbackRow(log *logger.Logger, id uuid.UUID) {
  dctx, cancel := detachedCtx()
  defer cancel()
  if _, err := s.exerciseRepo.Delete(dbctx.Context{Ctx: dctx}, id); err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
    log.Warn("row rollback failed", "exercise_id", id.String(), "error", err)
  }
}

func (s *ingestService) rollbackVector(log *logger.Logger, vectorID uuid.UUID) {
  dctx, cancel := detachedCtx()
  defer cancel()
  if err := s.vectors.Delete(dctx, []string{vectorID.String()}); err != nil {
    log.Warn("vector rollback failed, sweep will collect it", "vector_id", vectorID.String(), "error", err)
  }
}

func optionalText(v string) *string {
  if strings.TrimSpace(v) == "" {
    return nil
  }
  return pointers.String(v)
}

// embeddingText builds the search document for one exercise. The format
// front-loads the name and instructions and spells the numeric scales out in
// words so nearest-neighbor search has prose to grip.
func embeddingText(cand analyze.Candidate) string {
  level := pointers.ValueOr(cand.FitnessLevel, 5)
  intensity := pointers.ValueOr(cand.Intensity, 5)
  return strings.TrimSpace(fmt.Sprintf(`Exercise: %s

Instructions: %s

Benefits: %s

Problems it solves: %s

Duration/Reps: %s

Fitness Level: %d/10 (Beginner: 1-3, Intermediate: 4-7, Advanced: 8-10)

Intensity: %d/10 (Low: 1-3, Moderate: 4-7, High: 8-10)

This exercise is suitable for %d level fitness and has %d intensity.
It helps with %s and provides %s.`,
    cand.Name, cand.HowTo, cand.Benefits, cand.Counteracts, cand.RoundsReps,
    level, intensity, level, intensity, cand.Counteracts, cand.Benefits))
}

// vectorPayload mirrors the row's content fields into the vector store so
// search results render without a metadata round trip. database_id is the
// join key back to Postgres.
func vectorPayload(row *types.Exercise, cand analyze.Candidate) map[string]any {
  return map[string]any{
    "database_id":   row.ID.String(),
    "name":          row.Name,
    "how_to":        cand.HowTo,
    "benefits":      cand.Benefits,
    "counteracts":   cand.Counteracts,
    "rounds_reps":   cand.RoundsReps,
    "fitness_level": pointers.ValueOr(row.FitnessLevel, 5),
    "intensity":     pointers.ValueOr(row.Intensity, 5),
    "url":           row.NormalizedURL,
    "clip_path":     row.ClipPath,
    "start_time":    row.StartTime,
    "end_time":      row.EndTime,
    "duration":      row.EndTime - row.StartTime,
  }
}
