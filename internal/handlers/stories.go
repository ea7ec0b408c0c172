package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moveatlas/moveatlas-backend/internal/services"
)

type StoryHandler struct {
	stories services.StoryService
}

func NewStoryHandler(stories services.StoryService) *StoryHandler {
	return &StoryHandler{stories: stories}
}

// POST /api/stories
func (h *StoryHandler) GenerateStories(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt"`
		Count  int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	stories, err := h.stories.GenerateStories(c.Request.Context(), req.Prompt, req.Count)
	if err != nil {
		RespondServiceError(c, "generate_stories_failed", err)
		return
	}
	RespondOK(c, gin.H{"stories": stories, "count": len(stories)})
}
