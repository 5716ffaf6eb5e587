package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// ListAlerts returns retained alerts, newest first. active=true filters to
// unresolved alerts.
// GET /api/v1/alerts
func (h *Handler) ListAlerts(c echo.Context) error {
	alerts := h.monitor.Alerts()
	if c.QueryParam("active") == "true" {
		active := make([]domain.Alert, 0, len(alerts))
		for _, a := range alerts {
			if a.ResolvedAt == nil {
				active = append(active, a)
			}
		}
		alerts = active
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// AcknowledgeAlert latches an alert as acknowledged.
// POST /api/v1/alerts/:alert_id/acknowledge
func (h *Handler) AcknowledgeAlert(c echo.Context) error {
	if !h.monitor.Acknowledge(c.Param("alert_id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "alert not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// ResolveAlert latches an alert as resolved.
// POST /api/v1/alerts/:alert_id/resolve
func (h *Handler) ResolveAlert(c echo.Context) error {
	if !h.monitor.Resolve(c.Param("alert_id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "alert not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
