package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/http/v1/dto"
	"kardex/internal/infrastructure/storage/postgres"
)

// StockReader reads stock units and their lots.
type StockReader interface {
	GetUnit(ctx context.Context, unitID id.ID) (*entity.StockUnit, error)
	Lots(ctx context.Context, unitID id.ID) ([]entity.Lot, error)
}

// KardexProjector projects the kardex of a unit.
type KardexProjector interface {
	Project(ctx context.Context, unitID id.ID, from, to time.Time) (*reports.Kardex, error)
}

// CascadeHistory lists cascade audit entries of a unit.
type CascadeHistory interface {
	History(ctx context.Context, unitID id.ID, limit int) ([]postgres.CascadeAuditEntry, error)
}

const (
	defaultCascadeLimit = 20
	maxCascadeLimit     = 200
)

// StockHandler serves stock unit reads.
type StockHandler struct {
	*BaseHandler
	stock    StockReader
	kardex   KardexProjector
	cascades CascadeHistory
}

// NewStockHandler creates a new stock unit handler. cascades may be nil.
func NewStockHandler(base *BaseHandler, stock StockReader, kardex KardexProjector, cascades CascadeHistory) *StockHandler {
	return &StockHandler{BaseHandler: base, stock: stock, kardex: kardex, cascades: cascades}
}

// GetUnit handles GET /api/v1/stock-units/:id
func (h *StockHandler) GetUnit(c *gin.Context) {
	unitID, ok := h.PathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	unit, err := h.stock.GetUnit(ctx, unitID)
	if err != nil {
		h.Error(c, err)
		return
	}
	lots, err := h.stock.Lots(ctx, unitID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewStockUnitResponse(unit, lots))
}

// GetKardex handles GET /api/v1/stock-units/:id/kardex?from=&to=
func (h *StockHandler) GetKardex(c *gin.Context) {
	unitID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q dto.KardexQuery
	if !h.BindQuery(c, &q) {
		return
	}

	from, err := dto.ParseDate("from", q.From)
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := dto.ParseDate("to", q.To)
	if err != nil {
		h.Error(c, err)
		return
	}
	if to.Before(from) {
		h.Error(c, apperror.NewValidation("from must not be after to").
			WithDetail("from", q.From).
			WithDetail("to", q.To))
		return
	}

	k, err := h.kardex.Project(c.Request.Context(), unitID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, k)
}

// GetCascades handles GET /api/v1/stock-units/:id/cascades?limit=
func (h *StockHandler) GetCascades(c *gin.Context) {
	if h.cascades == nil {
		h.Error(c, apperror.NewNotFound("cascade history", "disabled"))
		return
	}
	unitID, ok := h.PathID(c)
	if !ok {
		return
	}

	limit := h.ParseIntQuery(c, "limit", defaultCascadeLimit)
	if limit <= 0 || limit > maxCascadeLimit {
		limit = defaultCascadeLimit
	}

	entries, err := h.cascades.History(c.Request.Context(), unitID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}
