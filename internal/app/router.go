package app

import (
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/server"
)

func wireRouter(log *logger.Logger, cfg Config, handlerset Handlers) *server.Server {
	return server.NewServer(server.RouterConfig{
		Log:             log,
		AllowedOrigins:  cfg.AllowedOrigins,
		HealthHandler:   handlerset.Health,
		VideoHandler:    handlerset.Video,
		JobsHandler:     handlerset.Jobs,
		ExerciseHandler: handlerset.Exercises,
		StoryHandler:    handlerset.Stories,
		SearchHandler:   handlerset.Search,
		RoutineHandler:  handlerset.Routines,
		AdminHandler:    handlerset.Admin,
	})
}
