package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const maxQueuePageSize = 100

// GetEmailStatus reports the delivery engine's effective configuration.
func (c *Controller) GetEmailStatus(ctx echo.Context) error {
	if c.mail == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"enabled": false})
	}
	return ctx.JSON(http.StatusOK, c.mail.GetConfigStatus())
}

// GetEmailStats returns per-slot delivery counters.
func (c *Controller) GetEmailStats(ctx echo.Context) error {
	if c.mail == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"enabled": false})
	}
	return ctx.JSON(http.StatusOK, c.mail.GetDeliveryStats())
}

// ResetEmailStats zeroes the delivery counters.
func (c *Controller) ResetEmailStats(ctx echo.Context) error {
	if c.mail != nil {
		c.mail.ResetDeliveryStats()
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetEmailQueue lists pending retry queue items.
func (c *Controller) GetEmailQueue(ctx echo.Context) error {
	limit := 50
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = min(n, maxQueuePageSize)
	}

	items, err := c.queue.List(ctx.Request().Context(), limit)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list email queue", http.StatusInternalServerError)
	}
	total, err := c.queue.Count(ctx.Request().Context())
	if err != nil {
		return c.handleError(ctx, err, "Failed to count email queue", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}
