package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/services"
	"github.com/moveatlas/moveatlas-backend/internal/sse"
	"github.com/moveatlas/moveatlas-backend/internal/types"
)

type JobsHandler struct {
	log    *logger.Logger
	ingest services.IngestService
	hub    *sse.Hub
}

func NewJobsHandler(log *logger.Logger, ingest services.IngestService, hub *sse.Hub) *JobsHandler {
	return &JobsHandler{
		log:    log.With("handler", "JobsHandler"),
		ingest: ingest,
		hub:    hub,
	}
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.ingest.GetJob(c.Request.Context(), jobID)
	if err != nil {
		RespondServiceError(c, "job_not_found", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs?limit=
func (h *JobsHandler) ListJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	jobs, err := h.ingest.ListJobs(c.Request.Context(), limit)
	if err != nil {
		RespondServiceError(c, "list_jobs_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/jobs/:id/cancel
func (h *JobsHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	accepted, err := h.ingest.Cancel(c.Request.Context(), jobID)
	if err != nil {
		RespondServiceError(c, "cancel_job_failed", err)
		return
	}
	RespondOK(c, gin.H{"job_id": jobID, "cancel_accepted": accepted})
}

// GET /api/jobs/:id/events
//
// Streams lifecycle events for one job over SSE. A snapshot of the job
// row always arrives first, so a watcher that connects late still sees
// where things stand. Already-terminal jobs get the snapshot frame and
// the response ends; live jobs subscribe before the snapshot is read so
// no event can fall between them.
func (h *JobsHandler) JobEvents(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.ingest.GetJob(c.Request.Context(), jobID)
	if err != nil {
		RespondServiceError(c, "job_not_found", err)
		return
	}
	if isTerminalState(job.State) {
		writeSnapshotFrame(c, job)
		return
	}

	client := h.hub.NewClient()
	h.hub.AddChannel(client, jobID.String())
	h.log.Debug("job event stream open", "job_id", jobID, "client_id", client.ID)

	// Re-read under the subscription: anything that happened after this
	// point arrives as a live event, anything before is in the snapshot.
	if job, err = h.ingest.GetJob(c.Request.Context(), jobID); err == nil {
		client.Outbound <- sse.Message{
			Channel: jobID.String(),
			Event:   snapshotEvent(job.State),
			Data:    gin.H{"job": job},
		}
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
	h.log.Debug("job event stream closed", "job_id", jobID, "client_id", client.ID)
}

func isTerminalState(state string) bool {
	return state == types.JobStateDone || state == types.JobStateFailed
}

func snapshotEvent(state string) sse.Event {
	switch state {
	case types.JobStateDone:
		return sse.EventJobDone
	case types.JobStateFailed:
		return sse.EventJobFailed
	case types.JobStateInProgress:
		return sse.EventJobProgress
	default:
		return sse.EventJobQueued
	}
}

func writeSnapshotFrame(c *gin.Context, job *types.IngestJob) {
	msg := sse.Message{
		Channel: job.JobID.String(),
		Event:   snapshotEvent(job.State),
		Data:    gin.H{"job": job},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "snapshot_failed", err)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", msg.Event, payload)
	c.Writer.Flush()
}
