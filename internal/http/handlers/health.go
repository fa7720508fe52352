package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

type HealthHandler struct {
	log *logger.Logger
	db  *gorm.DB
}

// NewHealthHandler pings db on every check when it is non-nil.
func NewHealthHandler(log *logger.Logger, db *gorm.DB) *HealthHandler {
	return &HealthHandler{log: log.With("handler", "HealthHandler"), db: db}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			h.log.Warn("healthcheck: database unreachable", "error", err)
			c.String(http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
