// Package documents declares the contract of the voucher store whose totals
// derive from movement costs.
package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// LineCost is the cost of one document line, keyed by the movement it posted.
type LineCost struct {
	MovementID id.ID           `db:"movement_id" json:"movementId"`
	Cost       decimal.Decimal `db:"line_cost" json:"cost"`
}

// Header identifies a document known to the engine.
type Header struct {
	ID            id.ID
	OwnerID       id.ID
	OperationType string
	Number        string
	Date          time.Time

	// TaxRatio is total/subtotal as recorded when the document was issued.
	// Zero means 1.
	TaxRatio decimal.Decimal
}

// Totals is the stored state of a document.
type Totals struct {
	ID            id.ID           `db:"id" json:"id"`
	OwnerID       id.ID           `db:"owner_id" json:"ownerId"`
	OperationType string          `db:"operation_type" json:"operationType"`
	Number        string          `db:"number" json:"number"`
	Date          time.Time       `db:"document_date" json:"date"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total         decimal.Decimal `db:"total" json:"total"`
	TaxRatio      decimal.Decimal `db:"tax_ratio" json:"taxRatio"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Store is the narrow document contract.
type Store interface {
	// Ensure creates the document if it does not exist yet.
	Ensure(ctx context.Context, header Header) error

	// RecomputeTotals upserts the given line costs, then sets subtotal to the
	// sum of all lines of the document and total to subtotal × tax ratio
	// rounded to cents. Unchanged subtotals leave the document untouched.
	RecomputeTotals(ctx context.Context, documentID id.ID, lines []LineCost) error

	Get(ctx context.Context, documentID id.ID) (*Totals, error)
}

// Validate checks header invariants.
func (h Header) Validate() error {
	if id.IsNil(h.ID) || id.IsNil(h.OwnerID) {
		return apperror.NewValidation("document requires id and owner")
	}
	if h.TaxRatio.IsNegative() {
		return apperror.NewValidation("document tax ratio must not be negative").WithDetail("document_id", h.ID)
	}
	return nil
}

// EffectiveTaxRatio returns the ratio applied to subtotals.
func (h Header) EffectiveTaxRatio() decimal.Decimal {
	if h.TaxRatio.IsZero() {
		return decimal.NewFromInt(1)
	}
	return h.TaxRatio
}
