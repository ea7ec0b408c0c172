package app

import (
	"gorm.io/gorm"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/repos"
)

type Repos struct {
	Exercise   repos.ExerciseRepo
	Job        repos.IngestJobRepo
	Routine    repos.WorkoutRoutineRepo
	StoryCache repos.StoryCacheRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Exercise:   repos.NewExerciseRepo(db, log),
		Job:        repos.NewIngestJobRepo(db, log),
		Routine:    repos.NewWorkoutRoutineRepo(db, log),
		StoryCache: repos.NewStoryCacheRepo(db, log),
	}
}
