package sse

import (
  "testing"

  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

func newTestHub(t *testing.T) *Hub {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("logger.New returned error: %v", err)
  }
  t.Cleanup(log.Sync)
  return NewHub(log)
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
  t.Parallel()
  hub := newTestHub(t)

  watcher := hub.NewClient()
  bystander := hub.NewClient()
  hub.AddChannel(watcher, "job-1")
  hub.AddChannel(bystander, "job-2")

  hub.Broadcast(Message{Channel: "job-1", Event: EventJobProgress, Data: "halfway"})

  select {
  case msg := <-watcher.Outbound:
    if msg.Event != EventJobProgress {
      t.Fatalf("event: want=%s got=%s", EventJobProgress, msg.Event)
    }
  default:
    t.Fatal("subscriber should have received the message")
  }

  select {
  case msg := <-bystander.Outbound:
    t.Fatalf("bystander should not receive messages, got %+v", msg)
  default:
  }
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
  t.Parallel()
  hub := newTestHub(t)

  client := hub.NewClient()
  hub.AddChannel(client, "job-1")

  // One more than the outbound buffer; the overflow must not block.
  for i := 0; i < cap(client.Outbound)+1; i++ {
    hub.Broadcast(Message{Channel: "job-1", Event: EventJobProgress})
  }

  if got := len(client.Outbound); got != cap(client.Outbound) {
    t.Fatalf("buffered messages: want=%d got=%d", cap(client.Outbound), got)
  }
}

func TestRemoveClientStopsDelivery(t *testing.T) {
  t.Parallel()
  hub := newTestHub(t)

  client := hub.NewClient()
  hub.AddChannel(client, "job-1")
  hub.RemoveClient(client)

  hub.Broadcast(Message{Channel: "job-1", Event: EventJobDone})

  select {
  case msg := <-client.Outbound:
    t.Fatalf("removed client should not receive messages, got %+v", msg)
  default:
  }
}

func TestBroadcastEmptyChannelIsNoop(t *testing.T) {
  t.Parallel()
  hub := newTestHub(t)

  client := hub.NewClient()
  hub.AddChannel(client, "")

  hub.Broadcast(Message{Channel: "", Event: EventJobQueued})

  select {
  case msg := <-client.Outbound:
    t.Fatalf("empty channel must never deliver, got %+v", msg)
  default:
  }
}
