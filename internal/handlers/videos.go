package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type VideoHandler struct {
	ingest services.IngestService
}

func NewVideoHandler(ingest services.IngestService) *VideoHandler {
	return &VideoHandler{ingest: ingest}
}

// POST /api/videos/process
func (h *VideoHandler) ProcessVideo(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	job, err := h.ingest.EnqueueURL(c.Request.Context(), req.URL)
	if err != nil {
		RespondServiceError(c, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.JobID,
		"state":  job.State,
	})
}
