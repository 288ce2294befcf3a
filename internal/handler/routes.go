package handler

import (
	"turn-service/internal/middleware"

	"github.com/labstack/echo/v4"
)

// Handlers groups everything RegisterRoutes mounts
type Handlers struct {
	Queue  *QueueHandler
	Admin  *AdminHandler
	Health *HealthHandler
}

// RegisterRoutes mounts the queue, lookup, admin and health routes on e.
// Reads are public; dispatch and deletion need an operator token; admin
// routes need the admin role.
func RegisterRoutes(e *echo.Echo, h Handlers, auth *middleware.Auth) {
	e.GET("/health", h.Health.HealthCheck)

	api := e.Group("/api")
	api.GET("/tickets/lookup", h.Queue.LookupTicket)

	q := api.Group("/orgs/:org_id/queues/:category_id")
	q.GET("", h.Queue.ListWaiting)
	q.POST("/tickets", h.Queue.IssueTicket)
	q.GET("/current", h.Queue.Current)
	q.GET("/position", h.Queue.Position)
	q.GET("/stats", h.Queue.Stats)

	operator := auth.RequireOperator("org_id")
	q.POST("/next", h.Queue.CallNext, operator)
	q.DELETE("", h.Queue.DeleteQueue, operator)

	admin := api.Group("/admin", auth.RequireAdmin())
	admin.POST("/sweep", h.Admin.Sweep)
	admin.POST("/repair", h.Admin.Repair)
	admin.GET("/integrity", h.Admin.Integrity)
	admin.GET("/overview", h.Admin.Overview)
	admin.GET("/activity", h.Admin.Activity)
}
