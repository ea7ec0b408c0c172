package app

import (
	"fmt"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/analyze"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/clips"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/download"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/services"
	"github.com/moveatlas/moveatlas-backend/internal/sse"
)

type Services struct {
	Ingest    services.IngestService
	Worker    *services.IngestWorker
	JobEvents services.JobEventService
	Exercises services.ExerciseService
	Retrieval services.RetrievalService
	Stories   services.StoryService
	Routines  services.RoutineService
	Reconcile services.ReconcileService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos, hub *sse.Hub) (Services, error) {
	log.Info("Wiring services...")

	if cfg.AIProvider != "openai" {
		log.Warn("unknown AI_PROVIDER, using openai", "provider", cfg.AIProvider)
	}

	registry := download.NewRegistry(
		log,
		download.NewYouTubeDownloader(log),
		download.NewTikTokDownloader(log),
		download.NewInstagramDownloader(log, cfg.InstagramCookiesFile),
	)

	var transcriber transcribe.Transcriber
	var err error
	switch cfg.TranscriberProvider {
	case "google":
		transcriber, err = transcribe.NewGoogleTranscriber(log, clients.GcpSpeech)
	default:
		if cfg.TranscriberProvider != "whisper" {
			log.Warn("unknown TRANSCRIBER_PROVIDER, using whisper", "provider", cfg.TranscriberProvider)
		}
		transcriber, err = transcribe.NewWhisperTranscriber(log, clients.OpenAI)
	}
	if err != nil {
		return Services{}, fmt.Errorf("init transcriber: %w", err)
	}

	extractor, err := keyframes.NewExtractor(log, clients.Media, keyframes.Options{
		FPS:        cfg.KeyframeFPS,
		Window:     cfg.KeyframeWindow,
		K:          cfg.KeyframeK,
		CutFloor:   cfg.KeyframeCutFloor,
		Workers:    cfg.KeyframeWorkers,
		FrameWidth: cfg.KeyframeWidth,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init keyframe extractor: %w", err)
	}

	analyzer, err := analyze.NewOpenAIAnalyzer(log, clients.OpenAI)
	if err != nil {
		return Services{}, fmt.Errorf("init analyzer: %w", err)
	}

	materializer := clips.NewMaterializer(log, clients.Media)

	jobEvents := services.NewJobEventService(log, hub, clients.EventBus)

	ingest, err := services.NewIngestService(
		log,
		reposet.Job,
		reposet.Exercise,
		registry,
		clients.Media,
		transcriber,
		extractor,
		analyzer,
		clients.OpenAI,
		clients.Vectors,
		materializer,
		clients.IngestLock,
		jobEvents,
		services.IngestConfig{
			ContentRoot:    cfg.ContentRoot,
			TempRoot:       cfg.TempRoot,
			RequestTimeout: cfg.RequestTimeout,
			LockTTL:        cfg.IngestLockTTL,
		},
	)
	if err != nil {
		return Services{}, fmt.Errorf("init ingest service: %w", err)
	}

	worker := services.NewIngestWorker(log, reposet.Job, ingest, cfg.MaxConcurrentRequests)

	retrievalCfg := services.LoadRetrievalConfig(log)
	retrieval := services.NewRetrievalService(log, clients.OpenAI, clients.Vectors, reposet.Exercise, retrievalCfg)
	stories := services.NewStoryService(log, clients.OpenAI, reposet.StoryCache, retrievalCfg)
	exercises := services.NewExerciseService(log, reposet.Exercise, clients.Vectors, cfg.ContentRoot)
	routines := services.NewRoutineService(log, clients.OpenAI, reposet.Routine, reposet.Exercise, stories, retrieval)
	reconcile := services.NewReconcileService(log, reposet.Exercise, clients.Vectors, cfg.ContentRoot)

	return Services{
		Ingest:    ingest,
		Worker:    worker,
		JobEvents: jobEvents,
		Exercises: exercises,
		Retrieval: retrieval,
		Stories:   stories,
		Routines:  routines,
		Reconcile: reconcile,
	}, nil
}
