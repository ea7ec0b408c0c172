package services

import (
  "context"
  "errors"
  "sync"
  "testing"
  "time"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/sse"
)

// fakeBus stands in for the Redis event bus. forward replays a message the
// way a subscription delivery would.
type fakeBus struct {
  mu         sync.Mutex
  published  []sse.Message
  publishErr error
  onMsg      func(m sse.Message)
}

func (f *fakeBus) Publish(_ context.Context, msg sse.Message) error {
  f.mu.Lock()
  defer f.mu.Unlock()
  if f.publishErr != nil {
    return f.publishErr
  }
  f.published = append(f.published, msg)
  return nil
}

func (f *fakeBus) StartForwarder(_ context.Context, onMsg func(m sse.Message)) error {
  f.mu.Lock()
  f.onMsg = onMsg
  f.mu.Unlock()
  return nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) forward(m sse.Message) {
  f.mu.Lock()
  fn := f.onMsg
  f.mu.Unlock()
  if fn != nil {
    fn(m)
  }
}

func (f *fakeBus) publishedCount() int {
  f.mu.Lock()
  defer f.mu.Unlock()
  return len(f.published)
}

func (f *fakeBus) lastPublished(t *testing.T) sse.Message {
  t.Helper()
  f.mu.Lock()
  defer f.mu.Unlock()
  if len(f.published) == 0 {
    t.Fatalf("no messages published")
  }
  return f.published[len(f.published)-1]
}

func subscribedClient(t *testing.T, hub *sse.Hub, channel string) *sse.Client {
  t.Helper()
  client := hub.NewClient()
  hub.AddChannel(client, channel)
  t.Cleanup(func() { hub.RemoveClient(client) })
  return client
}

func receiveMessage(t *testing.T, client *sse.Client) sse.Message {
  t.Helper()
  select {
  case msg := <-client.Outbound:
    return msg
  case <-time.After(time.Second):
    t.Fatalf("no message delivered within 1s")
    return sse.Message{}
  }
}

func TestJobEventsReachLocalHubWithoutBus(t *testing.T) {
  log := newTestLogger(t)
  hub := sse.NewHub(log)
  jobID := uuid.New()
  client := subscribedClient(t, hub, jobID.String())

  events := NewJobEventService(log, hub, nil)
  events.Queued(jobID, testReelURL)
  events.Progress(jobID, "download", 10, "fetching media")
  events.Done(jobID, map[string]any{"created": 2})

  for _, want := range []sse.Event{sse.EventJobQueued, sse.EventJobProgress, sse.EventJobDone} {
    msg := receiveMessage(t, client)
    if msg.Event != want {
      t.Fatalf("event: want=%q got=%q", want, msg.Event)
    }
    if msg.Channel != jobID.String() {
      t.Fatalf("channel: want=%q got=%q", jobID.String(), msg.Channel)
    }
  }
}

func TestJobEventsPreferBusWhenWired(t *testing.T) {
  log := newTestLogger(t)
  hub := sse.NewHub(log)
  jobID := uuid.New()
  client := subscribedClient(t, hub, jobID.String())

  bus := &fakeBus{}
  events := NewJobEventService(log, hub, bus)
  events.Failed(jobID, "download_failed", "yt-dlp exited 1")

  if got := bus.publishedCount(); got != 1 {
    t.Fatalf("published: want=1 got=%d", got)
  }
  msg := bus.lastPublished(t)
  if msg.Event != sse.EventJobFailed {
    t.Fatalf("event: want=%q got=%q", sse.EventJobFailed, msg.Event)
  }
  if msg.Channel != jobID.String() {
    t.Fatalf("channel: want=%q got=%q", jobID.String(), msg.Channel)
  }

  // hub delivery belongs to the forwarder when a bus is wired
  select {
  case got := <-client.Outbound:
    t.Fatalf("unexpected direct hub delivery: %q", got.Event)
  default:
  }
}

func TestJobEventsFallBackToHubWhenBusFails(t *testing.T) {
  log := newTestLogger(t)
  hub := sse.NewHub(log)
  jobID := uuid.New()
  client := subscribedClient(t, hub, jobID.String())

  bus := &fakeBus{publishErr: errors.New("broker down")}
  events := NewJobEventService(log, hub, bus)
  events.Cancelled(jobID)

  msg := receiveMessage(t, client)
  if msg.Event != sse.EventJobCancelled {
    t.Fatalf("event: want=%q got=%q", sse.EventJobCancelled, msg.Event)
  }
}

func TestForwarderBridgesBusIntoHub(t *testing.T) {
  log := newTestLogger(t)
  hub := sse.NewHub(log)
  jobID := uuid.New()
  client := subscribedClient(t, hub, jobID.String())

  bus := &fakeBus{}
  events := NewJobEventService(log, hub, bus)
  if err := events.StartForwarder(context.Background()); err != nil {
    t.Fatalf("StartForwarder returned error: %v", err)
  }

  bus.forward(sse.Message{
    Channel: jobID.String(),
    Event:   sse.EventJobProgress,
    Data:    map[string]any{"stage": "analysis", "progress": 60},
  })

  msg := receiveMessage(t, client)
  if msg.Event != sse.EventJobProgress {
    t.Fatalf("event: want=%q got=%q", sse.EventJobProgress, msg.Event)
  }
}

func TestForwarderWithoutBusIsNoop(t *testing.T) {
  log := newTestLogger(t)
  events := NewJobEventService(log, sse.NewHub(log), nil)
  if err := events.StartForwarder(context.Background()); err != nil {
    t.Fatalf("StartForwarder returned error: %v", err)
  }
}
