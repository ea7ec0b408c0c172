package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type RoutineHandler struct {
	routines services.RoutineService
}

func NewRoutineHandler(routines services.RoutineService) *RoutineHandler {
	return &RoutineHandler{routines: routines}
}

// POST /api/routines
func (h *RoutineHandler) CreateRoutine(c *gin.Context) {
	var req struct {
		Name        string      `json:"name"`
		Description *string     `json:"description"`
		ExerciseIDs []uuid.UUID `json:"exercise_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	routine, err := h.routines.Create(c.Request.Context(), req.Name, req.Description, req.ExerciseIDs)
	if err != nil {
		RespondServiceError(c, "create_routine_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"routine": routine})
}

// GET /api/routines/:id
func (h *RoutineHandler) GetRoutine(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_routine_id", err)
		return
	}
	detail, err := h.routines.Get(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, "routine_not_found", err)
		return
	}
	RespondOK(c, detail)
}

// GET /api/routines
func (h *RoutineHandler) ListRoutines(c *gin.Context) {
	limit, offset := 50, 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_offset", err)
			return
		}
		offset = n
	}
	routines, err := h.routines.List(c.Request.Context(), limit, offset)
	if err != nil {
		RespondServiceError(c, "list_routines_failed", err)
		return
	}
	RespondOK(c, gin.H{"routines": routines, "count": len(routines)})
}

// DELETE /api/routines/:id
func (h *RoutineHandler) DeleteRoutine(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_routine_id", err)
		return
	}
	if err := h.routines.Delete(c.Request.Context(), id); err != nil {
		RespondServiceError(c, "delete_routine_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/routines/preview
func (h *RoutineHandler) PreviewRoutine(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt"`
		Count  int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	picks, err := h.routines.Preview(c.Request.Context(), req.Prompt, req.Count)
	if err != nil {
		RespondServiceError(c, "preview_routine_failed", err)
		return
	}
	RespondOK(c, gin.H{"picks": picks, "count": len(picks)})
}
