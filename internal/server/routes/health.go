package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/formroute/formroute/internal/db"
)

// HealthRoutes exposes the liveness probe.
type HealthRoutes struct {
	database *db.Database
}

func NewHealthRoutes(database *db.Database) *HealthRoutes {
	return &HealthRoutes{database: database}
}

// RegisterRoutes registers the health endpoint.
func (h *HealthRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
}

func (h *HealthRoutes) handleHealth(c echo.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.database.DB().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "degraded", "timestamp": now})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "timestamp": now})
}
