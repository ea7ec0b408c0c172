package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/moveatlas/moveatlas-backend/internal/platform/qdrant"
)

type HealthHandler struct {
	db      *gorm.DB
	vectors qdrant.VectorStore
}

func NewHealthHandler(db *gorm.DB, vectors qdrant.VectorStore) *HealthHandler {
	return &HealthHandler{db: db, vectors: vectors}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
	}

	body := gin.H{"status": "ok"}
	if h.vectors != nil {
		info, err := h.vectors.Info(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "vectors": err.Error()})
			return
		}
		body["vectors"] = gin.H{
			"points":     info.Points,
			"vector_dim": info.VectorDim,
		}
	}
	c.JSON(http.StatusOK, body)
}
