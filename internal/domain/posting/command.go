// Package posting registers documents: it numbers them, records their
// movements and cascades the stock units a late document lands before.
package posting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/recalc"
)

// Line is one stock line of a document.
type Line struct {
	ProductID   id.ID               `json:"productId"`
	WarehouseID id.ID               `json:"warehouseId"`
	Kind        entity.MovementKind `json:"kind"`
	Quantity    decimal.Decimal     `json:"quantity"`

	// UnitCost and ExpirationDate apply to ENTRY lines.
	UnitCost       decimal.Decimal `json:"unitCost"`
	ExpirationDate *time.Time      `json:"expirationDate,omitempty"`

	// CostingMethod is used when the line opens a new stock unit.
	CostingMethod entity.CostingMethod `json:"costingMethod,omitempty"`
}

// Command registers one document.
type Command struct {
	// DocumentID is generated when nil.
	DocumentID    id.ID
	OwnerID       id.ID
	OperationType string
	Date          time.Time

	// TaxRatio is total/subtotal of the document; zero means 1.
	TaxRatio decimal.Decimal
	Reason   string
	Lines    []Line
}

// Validate checks the command before anything is written and moves Date to
// midnight UTC of its day.
func (c *Command) Validate(ctx context.Context) error {
	if id.IsNil(c.OwnerID) {
		return apperror.NewValidation("owner is required").WithDetail("field", "ownerId")
	}
	if c.OperationType == "" {
		return apperror.NewValidation("operation type is required").WithDetail("field", "operationType")
	}
	if c.Date.IsZero() {
		return apperror.NewValidation("document date is required").WithDetail("field", "date")
	}
	c.Date = types.Day(c.Date)
	if c.TaxRatio.IsNegative() {
		return apperror.NewValidation("tax ratio must not be negative").WithDetail("field", "taxRatio")
	}
	if len(c.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}

	for i, line := range c.Lines {
		if id.IsNil(line.ProductID) || id.IsNil(line.WarehouseID) {
			return apperror.NewValidation("product and warehouse are required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Kind.Valid() {
			return apperror.NewValidation("unknown movement kind").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1).
				WithDetail("kind", line.Kind)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Kind == entity.MovementEntry && line.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.CostingMethod != "" && !line.CostingMethod.Valid() {
			return apperror.NewValidation("unknown costing method").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}

// Result describes a registered document.
type Result struct {
	DocumentID id.ID  `json:"documentId"`
	Number     string `json:"number"`

	// Movements in line order with their final costs.
	Movements []*entity.Movement `json:"movements"`

	// Cascade is set when the document was dated before recorded movements.
	Cascade *recalc.Result `json:"cascade,omitempty"`
}
