package services

import (
  "context"
  "time"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/clients/redis"
  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
  "github.com/moveatlas/moveatlas-backend/internal/sse"
)

// JobEventService fans job lifecycle events out to watchers. With a Redis
// bus wired, events travel through pub/sub so any API process can serve
// the SSE stream for a job another process is working on; without one,
// events go straight to the local hub.
type JobEventService interface {
  Queued(jobID uuid.UUID, url string)
  Progress(jobID uuid.UUID, stage string, pct int, msg string)
  Done(jobID uuid.UUID, result any)
  Failed(jobID uuid.UUID, kind, message string)
  Cancelled(jobID uuid.UUID)
  StartForwarder(ctx context.Context) error
}

type jobEventService struct {
  log *logger.Logger
  hub *sse.Hub
  bus redis.EventBus
}

func NewJobEventService(baseLog *logger.Logger, hub *sse.Hub, bus redis.EventBus) JobEventService {
  return &jobEventService{
    log: baseLog.With("service", "JobEventService"),
    hub: hub,
    bus: bus,
  }
}

// StartForwarder subscribes the local hub to the bus. Without a bus the
// publish path already feeds the hub and there is nothing to forward.
func (s *jobEventService) StartForwarder(ctx context.Context) error {
  if s.bus == nil {
    return nil
  }
  return s.bus.StartForwarder(ctx, func(m sse.Message) {
    s.hub.Broadcast(m)
  })
}

func (s *jobEventService) Queued(jobID uuid.UUID, url string) {
  s.emit(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobQueued,
    Data:    map[string]any{"job_id": jobID, "url": url},
  })
}

func (s *jobEventService) Progress(jobID uuid.UUID, stage string, pct int, msg string) {
  s.emit(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobProgress,
    Data:    map[string]any{"job_id": jobID, "stage": stage, "progress": pct, "message": msg},
  })
}

func (s *jobEventService) Done(jobID uuid.UUID, result any) {
  s.emit(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobDone,
    Data:    map[string]any{"job_id": jobID, "result": result},
  })
}

func (s *jobEventService) Failed(jobID uuid.UUID, kind, message string) {
  s.emit(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobFailed,
    Data:    map[string]any{"job_id": jobID, "error_kind": kind, "message": message},
  })
}

func (s *jobEventService) Cancelled(jobID uuid.UUID) {
  s.emit(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobCancelled,
    Data:    map[string]any{"job_id": jobID},
  })
}

// emit never blocks pipeline progress on a slow broker: bus publishes get
// a short deadline detached from the pipeline context, so events still go
// out while a job is being cancelled.
func (s *jobEventService) emit(msg sse.Message) {
  if s.bus != nil {
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := s.bus.Publish(ctx, msg); err != nil {
      s.log.Warn("job event publish failed, falling back to local hub", "event", msg.Event, "error", err)
      s.hub.Broadcast(msg)
    }
    return
  }
  s.hub.Broadcast(msg)
}
