package middleware

import (
	"turn-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HeaderRequestID carries the request id in both directions
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// keep an id assigned by a proxy in front of us
		requestID := c.Request().Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
			c.Request().Header.Set(HeaderRequestID, requestID)
		}
		c.Response().Header().Set(HeaderRequestID, requestID)
		c.Set("request_id", requestID)

		log := logger.GetLogger().With(zap.String("request_id", requestID))
		c.Set("logger", log)

		// services read the logger from the request context
		req := c.Request()
		c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))

		return next(c)
	}
}
