package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/http/v1/dto"
)

// Valuator builds valuation reports.
type Valuator interface {
	Valuate(ctx context.Context, filter reports.ValuationFilter) (*reports.Valuation, error)
}

// ReportsHandler handles report requests.
type ReportsHandler struct {
	*BaseHandler
	valuator Valuator
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, valuator Valuator) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, valuator: valuator}
}

// GetValuation handles GET /api/v1/reports/valuation
func (h *ReportsHandler) GetValuation(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.valuator.Valuate(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
