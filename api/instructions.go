package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// SubmitInstruction executes one signed instruction and returns its terminal
// result. Resubmitting a completed instruction id returns the recorded
// result; an id still executing is rejected with 409.
// POST /api/v1/instructions
func (h *Handler) SubmitInstruction(c echo.Context) error {
	ctx := c.Request().Context()

	var instr domain.Instruction
	if err := c.Bind(&instr); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if instr.InstructionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "instructionId is required"})
	}
	if instr.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agentId is required"})
	}
	if instr.Operation.Type == "" || instr.Operation.Action == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "operation type and action are required"})
	}

	result, err := h.dispatcher.Execute(ctx, instr)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateInstruction) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error":         "instruction is already executing",
				"instructionId": instr.InstructionID,
			})
		}
		h.log.WithField("instruction_id", instr.InstructionID).WithError(err).Error("instruction execution failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":         "failed to execute instruction",
			"instructionId": instr.InstructionID,
		})
	}

	return c.JSON(http.StatusOK, result)
}

// ListExecutions returns the retained execution history, most recent first.
// GET /api/v1/executions
func (h *Handler) ListExecutions(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	executions := h.dispatcher.Recent(limit)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":      len(executions),
		"executions": executions,
	})
}
