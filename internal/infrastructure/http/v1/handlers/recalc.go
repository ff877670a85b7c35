package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kardex/internal/domain/recalc"
	"kardex/internal/infrastructure/http/v1/dto"
)

// Recalculator runs cascades on demand.
type Recalculator interface {
	Run(ctx context.Context, req recalc.Request) (*recalc.Result, error)
}

// RecalcHandler handles manual recalculation.
type RecalcHandler struct {
	*BaseHandler
	recalc Recalculator
}

// NewRecalcHandler creates a new recalculation handler.
func NewRecalcHandler(base *BaseHandler, r Recalculator) *RecalcHandler {
	return &RecalcHandler{BaseHandler: base, recalc: r}
}

// RecalculateUnit handles POST /api/v1/stock-units/:id/recalculate
func (h *RecalcHandler) RecalculateUnit(c *gin.Context) {
	unitID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.RecalculateUnitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	run, err := req.ToRequest(h.OwnerID(c), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.run(c, run)
}

// Recalculate handles POST /api/v1/recalculations (several units, one
// transaction).
func (h *RecalcHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	run, err := req.ToRequest(h.OwnerID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.run(c, run)
}

func (h *RecalcHandler) run(c *gin.Context, req recalc.Request) {
	res, err := h.recalc.Run(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
