package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/moveatlas/moveatlas-backend/internal/handlers"
	"github.com/moveatlas/moveatlas-backend/internal/middleware"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string

	HealthHandler   *handlers.HealthHandler
	VideoHandler    *handlers.VideoHandler
	JobsHandler     *handlers.JobsHandler
	ExerciseHandler *handlers.ExerciseHandler
	StoryHandler    *handlers.StoryHandler
	SearchHandler   *handlers.SearchHandler
	RoutineHandler  *handlers.RoutineHandler
	AdminHandler    *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("moveatlas-backend"))
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Ingestion
		if cfg.VideoHandler != nil {
			api.POST("/videos/process", cfg.VideoHandler.ProcessVideo)
		}

		// Jobs
		if cfg.JobsHandler != nil {
			api.GET("/jobs", cfg.JobsHandler.ListJobs)
			api.GET("/jobs/:id", cfg.JobsHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobsHandler.CancelJob)
			api.GET("/jobs/:id/events", cfg.JobsHandler.JobEvents)
		}

		// Exercises
		if cfg.ExerciseHandler != nil {
			api.GET("/exercises", cfg.ExerciseHandler.ListExercises)
			api.GET("/exercises/search", cfg.ExerciseHandler.SearchExercises)
			api.GET("/exercises/:id", cfg.ExerciseHandler.GetExercise)
			api.POST("/exercises/bulk", cfg.ExerciseHandler.BulkGetExercises)
			api.DELETE("/exercises/:id", cfg.ExerciseHandler.DeleteExercise)
		}

		// Stories
		if cfg.StoryHandler != nil {
			api.POST("/stories", cfg.StoryHandler.GenerateStories)
		}

		// Retrieval
		if cfg.SearchHandler != nil {
			api.POST("/search/diverse", cfg.SearchHandler.DiverseSearch)
		}

		// Routines
		if cfg.RoutineHandler != nil {
			api.POST("/routines", cfg.RoutineHandler.CreateRoutine)
			api.GET("/routines", cfg.RoutineHandler.ListRoutines)
			api.GET("/routines/:id", cfg.RoutineHandler.GetRoutine)
			api.DELETE("/routines/:id", cfg.RoutineHandler.DeleteRoutine)
			api.POST("/routines/preview", cfg.RoutineHandler.PreviewRoutine)
		}

		// Admin
		if cfg.AdminHandler != nil {
			api.POST("/admin/reconcile", cfg.AdminHandler.Reconcile)
		}
	}

	return r
}
