package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/comms"
)

// SendMessage routes one message to an agent. Routing failures, including
// channel delivery errors, are reported in the result body with success
// false; the message is never retried.
// POST /api/v1/messages
func (h *Handler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req comms.SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.router.Send(ctx, req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}
