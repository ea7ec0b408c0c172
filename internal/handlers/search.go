package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type SearchHandler struct {
	retrieval services.RetrievalService
}

func NewSearchHandler(retrieval services.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// POST /api/search/diverse
func (h *SearchHandler) DiverseSearch(c *gin.Context) {
	var req struct {
		Story          string   `json:"story"`
		K              int      `json:"k"`
		ScoreThreshold *float64 `json:"score_threshold"`
		MaxPerCategory *int     `json:"max_per_category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	results, err := h.retrieval.DiverseSearch(c.Request.Context(), services.DiverseSearchParams{
		Query:          req.Story,
		K:              req.K,
		ScoreThreshold: req.ScoreThreshold,
		MaxPerCategory: req.MaxPerCategory,
	})
	if err != nil {
		RespondServiceError(c, "diverse_search_failed", err)
		return
	}
	RespondOK(c, gin.H{"results": results, "count": len(results)})
}
