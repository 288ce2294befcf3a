package handler

import (
	"context"
	"net/http"
	"time"
	"turn-service/pkg/database"
	"turn-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports liveness and, on request, dependency status
type HealthHandler struct {
	db    *gorm.DB
	redis redis.Cmdable
}

// NewHealthHandler creates a HealthHandler. rdb may be nil when Redis is
// disabled.
func NewHealthHandler(db *gorm.DB, rdb redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

// HealthCheck handles the health check endpoint. With ?check=deps the
// database and Redis are pinged.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	log := logger.FromEcho(c)

	response := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if c.QueryParam("check") == "" {
		return c.JSON(http.StatusOK, response)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := database.Ping(ctx, h.db); err != nil {
		log.Error("Database ping error", zap.Error(err))
		response["status"] = "error"
		response["db_status"] = "error"
		status = http.StatusServiceUnavailable
	} else {
		response["db_status"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			log.Error("Redis ping error", zap.Error(err))
			response["status"] = "error"
			response["redis_status"] = "error"
			status = http.StatusServiceUnavailable
		} else {
			response["redis_status"] = "ok"
		}
	}

	return c.JSON(status, response)
}
