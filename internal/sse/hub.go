package sse

import (
  "encoding/json"
  "fmt"
  "net/http"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"

  "github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

type Event string

const (
  EventJobQueued    Event = "JobQueued"
  EventJobProgress  Event = "JobProgress"
  EventJobDone      Event = "JobDone"
  EventJobFailed    Event = "JobFailed"
  EventJobCancelled Event = "JobCancelled"
)

// Message is one job event. Channel is the job id, so a client watching a
// job subscribes to exactly one channel.
type Message struct {
  Channel string `json:"channel"`
  Event   Event  `json:"event"`
  Data    any    `json:"data,omitempty"`
}

type Client struct {
  ID       uuid.UUID
  Channels map[string]bool
  Outbound chan Message
  done     chan struct{}
}

type Hub struct {
  mu            sync.RWMutex
  log           *logger.Logger
  subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
  return &Hub{
    log:           log.With("component", "SSEHub"),
    subscriptions: make(map[string]map[*Client]bool),
  }
}

func (hub *Hub) NewClient() *Client {
  return &Client{
    ID:       uuid.New(),
    Channels: make(map[string]bool),
    Outbound: make(chan Message, 16),
    done:     make(chan struct{}),
  }
}

func (hub *Hub) AddChannel(client *Client, channel string) {
  hub.mu.Lock()
  defer hub.mu.Unlock()

  channel = strings.TrimSpace(channel)
  if channel == "" {
    return
  }

  client.Channels[channel] = true

  clients, exists := hub.subscriptions[channel]
  if !exists {
    clients = make(map[*Client]bool)
    hub.subscriptions[channel] = clients
  }
  clients[client] = true

  hub.log.Debug("sse client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *Hub) RemoveClient(client *Client) {
  hub.mu.Lock()
  defer hub.mu.Unlock()

  for ch := range client.Channels {
    if subMap, ok := hub.subscriptions[ch]; ok {
      delete(subMap, client)
      if len(subMap) == 0 {
        delete(hub.subscriptions, ch)
      }
    }
  }
  client.Channels = make(map[string]bool)
  hub.log.Debug("sse client unsubscribed from all channels", "clientID", client.ID)
}

// Broadcast fans a message out to every subscriber of its channel. Sends
// never block: a client that cannot keep up loses messages rather than
// stalling the publisher.
func (hub *Hub) Broadcast(msg Message) {
  hub.mu.RLock()
  defer hub.mu.RUnlock()

  if msg.Channel == "" {
    return
  }
  clientsMap, ok := hub.subscriptions[msg.Channel]
  if !ok {
    return
  }
  for c := range clientsMap {
    select {
    case c.Outbound <- msg:
    default:
      hub.log.Warn("dropping sse message; outbound buffer full", "clientID", c.ID, "channel", msg.Channel)
    }
  }
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
  w.Header().Set("Content-Type", "text/event-stream")
  w.Header().Set("Cache-Control", "no-cache")
  w.Header().Set("Connection", "keep-alive")
  w.Header().Set("X-Accel-Buffering", "no")

  flusher, ok := w.(http.Flusher)
  if !ok {
    http.Error(w, "streaming unsupported", http.StatusInternalServerError)
    return
  }
  ctx := r.Context()

  heartbeat := time.NewTicker(15 * time.Second)
  defer heartbeat.Stop()

  for {
    select {
    case <-ctx.Done():
      hub.log.Debug("sse client context done", "clientID", client.ID, "err", ctx.Err())
      return
    case <-client.done:
      return
    case <-heartbeat.C:
      fmt.Fprint(w, ": ping\n\n")
      flusher.Flush()
    case msg := <-client.Outbound:
      jsonBytes, err := json.Marshal(msg)
      if err != nil {
        hub.log.Warn("failed to marshal sse message", "error", err)
        continue
      }
      fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, string(jsonBytes))
      flusher.Flush()
    }
  }
}

func (hub *Hub) CloseClient(client *Client) {
  close(client.done)
  hub.RemoveClient(client)
  close(client.Outbound)
}
