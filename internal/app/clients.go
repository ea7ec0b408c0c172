package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/clients/gcp"
	"github.com/moveatlas/moveatlas-backend/internal/clients/localmedia"
	"github.com/moveatlas/moveatlas-backend/internal/clients/openai"
	"github.com/moveatlas/moveatlas-backend/internal/clients/redis"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
)

type Clients struct {
	OpenAI  openai.Client
	Media   localmedia.MediaTools
	Vectors qdrant.VectorStore

	EventBus   redis.EventBus
	IngestLock redis.IngestLock

	GcpSpeech gcp.Speech
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	media := localmedia.NewMediaTools(log)

	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("resolve qdrant config: %w", err)
	}
	vectors, err := qdrant.NewVectorStore(log, qcfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init qdrant store: %w", err)
	}
	vectors = traceVectorStore(vectors)

	// Redis is optional: without it the ingest lock degrades to nothing
	// and job events stay process-local.
	var bus redis.EventBus
	var lock redis.IngestLock
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		bus, err = redis.NewEventBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		lock, err = redis.NewIngestLock(log)
		if err != nil {
			_ = bus.Close()
			return Clients{}, fmt.Errorf("init redis ingest lock: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; ingest lock and cross-process job events disabled")
	}

	var speech gcp.Speech
	if cfg.TranscriberProvider == "google" {
		speech, err = gcp.NewSpeech(log)
		if err != nil {
			closeClients(bus, lock, nil)
			return Clients{}, fmt.Errorf("init google speech client: %w", err)
		}
	}

	return Clients{
		OpenAI:     openaiClient,
		Media:      media,
		Vectors:    vectors,
		EventBus:   bus,
		IngestLock: lock,
		GcpSpeech:  speech,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	closeClients(c.EventBus, c.IngestLock, c.GcpSpeech)
}

func closeClients(bus redis.EventBus, lock redis.IngestLock, speech gcp.Speech) {
	if bus != nil {
		_ = bus.Close()
	}
	if lock != nil {
		_ = lock.Close()
	}
	if speech != nil {
		_ = speech.Close()
	}
}
