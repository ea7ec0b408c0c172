package app

import (
	"gorm.io/gorm"

	"github.com/moveatlas/moveatlas-backend/internal/handlers"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
	"github.com/moveatlas/moveatlas-backend/internal/sse"
)

type Handlers struct {
	Health    *handlers.HealthHandler
	Video     *handlers.VideoHandler
	Jobs      *handlers.JobsHandler
	Exercises *handlers.ExerciseHandler
	Stories   *handlers.StoryHandler
	Search    *handlers.SearchHandler
	Routines  *handlers.RoutineHandler
	Admin     *handlers.AdminHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, serviceset Services, hub *sse.Hub, vectors qdrant.VectorStore) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    handlers.NewHealthHandler(db, vectors),
		Video:     handlers.NewVideoHandler(serviceset.Ingest),
		Jobs:      handlers.NewJobsHandler(log, serviceset.Ingest, hub),
		Exercises: handlers.NewExerciseHandler(serviceset.Exercises),
		Stories:   handlers.NewStoryHandler(serviceset.Stories),
		Search:    handlers.NewSearchHandler(serviceset.Retrieval),
		Routines:  handlers.NewRoutineHandler(serviceset.Routines),
		Admin:     handlers.NewAdminHandler(serviceset.Reconcile),
	}
}
