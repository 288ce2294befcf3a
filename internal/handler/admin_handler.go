package handler

import (
	"net/http"
	"strconv"
	"turn-service/internal/maintenance"
	"turn-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminHandler exposes maintenance tasks
type AdminHandler struct {
	maint         *maintenance.Service
	retentionDays int
}

// NewAdminHandler creates an AdminHandler. retentionDays is used when a
// sweep request does not name its own.
func NewAdminHandler(maint *maintenance.Service, retentionDays int) *AdminHandler {
	return &AdminHandler{maint: maint, retentionDays: retentionDays}
}

// Sweep deletes expired called tickets and snapshots
func (h *AdminHandler) Sweep(c echo.Context) error {
	log := logger.FromEcho(c)
	days := h.retentionDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			log.Warn("Invalid days parameter", zap.String("value", raw))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be a non-negative integer"})
		}
		days = n
	}

	res, err := h.maint.Sweep(c.Request().Context(), days)
	if err != nil {
		// partial counts are still reported
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":  "Sweep finished with errors",
			"result": res,
		})
	}
	return c.JSON(http.StatusOK, res)
}

// Repair rewrites waiting positions as 1..N
func (h *AdminHandler) Repair(c echo.Context) error {
	res, err := h.maint.Repair(c.Request().Context())
	if err != nil {
		logger.FromEcho(c).Error("Repair finished with errors", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":  "Repair finished with errors",
			"result": res,
		})
	}
	return c.JSON(http.StatusOK, res)
}

// Integrity reports consistency problems without fixing them
func (h *AdminHandler) Integrity(c echo.Context) error {
	report, err := h.maint.IntegrityCheck(c.Request().Context())
	if err != nil {
		logger.FromEcho(c).Error("Integrity check failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Integrity check failed"})
	}
	return c.JSON(http.StatusOK, report)
}

// Overview returns system-wide counts
func (h *AdminHandler) Overview(c echo.Context) error {
	ov, err := h.maint.Overview(c.Request().Context())
	if err != nil {
		logger.FromEcho(c).Error("Failed to build overview", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to build overview"})
	}
	return c.JSON(http.StatusOK, ov)
}

// Activity lists per-organization activity. With organization_id it
// returns that organization's tickets per day over ?days (default 7).
func (h *AdminHandler) Activity(c echo.Context) error {
	log := logger.FromEcho(c)
	orgID := c.QueryParam("organization_id")
	if orgID == "" {
		reports, err := h.maint.Activity(c.Request().Context())
		if err != nil {
			log.Error("Failed to build activity report", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to build activity report"})
		}
		return c.JSON(http.StatusOK, reports)
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			log.Warn("Invalid days parameter", zap.String("value", raw))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be a positive integer"})
		}
		days = n
	}

	counts, err := h.maint.TicketsByDay(c.Request().Context(), orgID, days)
	if err != nil {
		log.Error("Failed to count tickets by day", zap.String("organization_id", orgID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to count tickets by day"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"organization_id": orgID,
		"days":            days,
		"tickets_by_day":  counts,
	})
}
