package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/repos"
	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type ExerciseHandler struct {
	exercises services.ExerciseService
}

func NewExerciseHandler(exercises services.ExerciseService) *ExerciseHandler {
	return &ExerciseHandler{exercises: exercises}
}

// GET /api/exercises
func (h *ExerciseHandler) ListExercises(c *gin.Context) {
	filter, err := parseExerciseFilter(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_filter", err)
		return
	}
	exercises, err := h.exercises.List(c.Request.Context(), filter)
	if err != nil {
		RespondServiceError(c, "list_exercises_failed", err)
		return
	}
	RespondOK(c, gin.H{"exercises": exercises, "count": len(exercises)})
}

// GET /api/exercises/search?q=
func (h *ExerciseHandler) SearchExercises(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		RespondError(c, http.StatusBadRequest, "missing_query", errors.New("query parameter q is required"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	exercises, err := h.exercises.Search(c.Request.Context(), query, limit)
	if err != nil {
		RespondServiceError(c, "search_exercises_failed", err)
		return
	}
	RespondOK(c, gin.H{"exercises": exercises, "count": len(exercises)})
}

// GET /api/exercises/:id
func (h *ExerciseHandler) GetExercise(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_exercise_id", err)
		return
	}
	exercise, err := h.exercises.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "exercise_not_found", err)
		return
	}
	RespondOK(c, gin.H{"exercise": exercise})
}

// POST /api/exercises/bulk
func (h *ExerciseHandler) BulkGetExercises(c *gin.Context) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if len(req.IDs) == 0 {
		RespondOK(c, gin.H{"exercises": []any{}, "count": 0})
		return
	}
	exercises, err := h.exercises.BulkGet(c.Request.Context(), req.IDs)
	if err != nil {
		RespondServiceError(c, "bulk_get_exercises_failed", err)
		return
	}
	RespondOK(c, gin.H{"exercises": exercises, "count": len(exercises)})
}

// DELETE /api/exercises/:id
func (h *ExerciseHandler) DeleteExercise(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_exercise_id", err)
		return
	}
	exercise, err := h.exercises.Delete(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "delete_exercise_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": exercise})
}

func parseExerciseFilter(c *gin.Context) (repos.ExerciseFilter, error) {
	filter := repos.ExerciseFilter{Limit: 50}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return filter, errors.New("limit must be between 1 and 500")
		}
		filter.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be non-negative")
		}
		filter.Offset = n
	}

	var err error
	if filter.FitnessLevelMin, err = queryIntPtr(c, "fitness_level_min"); err != nil {
		return filter, err
	}
	if filter.FitnessLevelMax, err = queryIntPtr(c, "fitness_level_max"); err != nil {
		return filter, err
	}
	if filter.IntensityMin, err = queryIntPtr(c, "intensity_min"); err != nil {
		return filter, err
	}
	if filter.IntensityMax, err = queryIntPtr(c, "intensity_max"); err != nil {
		return filter, err
	}
	if filter.CreatedAfter, err = queryTimePtr(c, "created_after"); err != nil {
		return filter, err
	}
	if filter.CreatedBefore, err = queryTimePtr(c, "created_before"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryIntPtr(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.New(key + " must be an integer")
	}
	return &n, nil
}

func queryTimePtr(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(key + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}
