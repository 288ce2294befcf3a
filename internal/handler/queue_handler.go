package handler

import (
	"errors"
	"net/http"
	"strings"
	"turn-service/internal/queue"
	"turn-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// IssueRequest is the body of the issue endpoint
type IssueRequest struct {
	DisplayName string `json:"display_name"`
}

// QueueHandler serves the per-queue endpoints
type QueueHandler struct {
	engine  *queue.Engine
	queries *queue.QueryService
}

// NewQueueHandler creates a QueueHandler
func NewQueueHandler(engine *queue.Engine, queries *queue.QueryService) *QueueHandler {
	return &QueueHandler{engine: engine, queries: queries}
}

// ListWaiting returns the waiting tickets in position order
func (h *QueueHandler) ListWaiting(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	tickets, err := h.queries.ListWaiting(c.Request().Context(), orgID, categoryID)
	if err != nil {
		return respondError(c, err, "Failed to list waiting tickets")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"organization_id": orgID,
		"category_id":     categoryID,
		"count":           len(tickets),
		"tickets":         tickets,
	})
}

// IssueTicket appends a ticket to the queue
func (h *QueueHandler) IssueTicket(c echo.Context) error {
	log := logger.FromEcho(c)
	orgID, categoryID := queueParams(c)

	var req IssueRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	ticket, err := h.engine.Issue(c.Request().Context(), orgID, categoryID, req.DisplayName)
	if err != nil {
		return respondError(c, err, "Failed to issue ticket")
	}
	return c.JSON(http.StatusCreated, ticket)
}

// CallNext dispatches the head of the queue
func (h *QueueHandler) CallNext(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	ticket, err := h.engine.CallNext(c.Request().Context(), orgID, categoryID)
	if errors.Is(err, queue.ErrEmpty) {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no waiting tickets"})
	}
	if err != nil {
		return respondError(c, err, "Failed to call next ticket")
	}
	return c.JSON(http.StatusOK, ticket)
}

// Current returns the last dispatched ticket, null when none
func (h *QueueHandler) Current(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	ticket, err := h.queries.Current(c.Request().Context(), orgID, categoryID)
	if err != nil {
		return respondError(c, err, "Failed to read current ticket")
	}
	return c.JSON(http.StatusOK, echo.Map{"current": ticket})
}

// Position finds a waiting ticket by id, display name or short code
func (h *QueueHandler) Position(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	identifier := strings.TrimSpace(c.QueryParam("identifier"))
	if identifier == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier is required"})
	}

	res, err := h.queries.FindPosition(c.Request().Context(), orgID, categoryID, identifier)
	if err != nil {
		return respondError(c, err, "Failed to find ticket position")
	}
	return c.JSON(http.StatusOK, res)
}

// Stats returns waiting count, served today and estimated wait
func (h *QueueHandler) Stats(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	stats, err := h.queries.Stats(c.Request().Context(), orgID, categoryID)
	if err != nil {
		return respondError(c, err, "Failed to compute queue statistics")
	}
	return c.JSON(http.StatusOK, stats)
}

// DeleteQueue removes the category with its tickets and snapshot
func (h *QueueHandler) DeleteQueue(c echo.Context) error {
	orgID, categoryID := queueParams(c)
	existed, err := h.engine.DeleteQueue(c.Request().Context(), orgID, categoryID)
	if err != nil {
		return respondError(c, err, "Failed to delete queue")
	}
	if !existed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Queue not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// LookupTicket finds a waiting ticket in any queue
func (h *QueueHandler) LookupTicket(c echo.Context) error {
	identifier := strings.TrimSpace(c.QueryParam("identifier"))
	if identifier == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier is required"})
	}

	res, err := h.queries.GlobalFind(c.Request().Context(), identifier)
	if err != nil {
		return respondError(c, err, "Failed to look up ticket")
	}
	return c.JSON(http.StatusOK, res)
}

func queueParams(c echo.Context) (string, string) {
	return c.Param("org_id"), c.Param("category_id")
}

// respondError maps queue errors to HTTP responses
func respondError(c echo.Context, err error, msg string) error {
	log := logger.FromEcho(c)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Not found"})
	case errors.Is(err, queue.ErrEmpty):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no waiting tickets"})
	case errors.Is(err, queue.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		log.Error(msg, zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
	}
}
