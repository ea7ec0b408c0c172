package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type AdminHandler struct {
	reconcile services.ReconcileService
}

func NewAdminHandler(reconcile services.ReconcileService) *AdminHandler {
	return &AdminHandler{reconcile: reconcile}
}

// POST /api/admin/reconcile
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var req struct {
		DryRun bool `json:"dry_run"`
	}
	// Empty body means a real sweep.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}
	report, err := h.reconcile.Sweep(c.Request.Context(), req.DryRun)
	if err != nil {
		RespondServiceError(c, "reconcile_failed", err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}
