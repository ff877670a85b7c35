package dto

import (
	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/posting"
)

// RegistrationLine is one stock line of a registered document.
type RegistrationLine struct {
	ProductID      string               `json:"productId" binding:"required"`
	WarehouseID    string               `json:"warehouseId" binding:"required"`
	Kind           entity.MovementKind  `json:"kind" binding:"required"`
	Quantity       decimal.Decimal      `json:"quantity"`
	UnitCost       decimal.Decimal      `json:"unitCost"`
	ExpirationDate string               `json:"expirationDate"`
	CostingMethod  entity.CostingMethod `json:"costingMethod"`
}

// RegistrationRequest registers one document with its stock lines.
type RegistrationRequest struct {
	DocumentID    string             `json:"documentId"`
	OperationType string             `json:"operationType" binding:"required"`
	Date          string             `json:"date" binding:"required"`
	TaxRatio      decimal.Decimal    `json:"taxRatio"`
	Reason        string             `json:"reason"`
	Lines         []RegistrationLine `json:"lines" binding:"required,min=1,dive"`
}

// ToCommand converts the request for the posting engine. Business rules are
// left to posting.Command.Validate.
func (r *RegistrationRequest) ToCommand(ownerID id.ID) (posting.Command, error) {
	date, err := ParseDate("date", r.Date)
	if err != nil {
		return posting.Command{}, err
	}

	cmd := posting.Command{
		OwnerID:       ownerID,
		OperationType: r.OperationType,
		Date:          date,
		TaxRatio:      r.TaxRatio,
		Reason:        r.Reason,
		Lines:         make([]posting.Line, 0, len(r.Lines)),
	}
	if r.DocumentID != "" {
		if cmd.DocumentID, err = ParseID("documentId", r.DocumentID); err != nil {
			return posting.Command{}, err
		}
	}

	for i, l := range r.Lines {
		line, err := l.toLine()
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return posting.Command{}, appErr.WithDetail("lineNo", i+1)
			}
			return posting.Command{}, err
		}
		cmd.Lines = append(cmd.Lines, line)
	}
	return cmd, nil
}

func (l RegistrationLine) toLine() (posting.Line, error) {
	productID, err := ParseID("productId", l.ProductID)
	if err != nil {
		return posting.Line{}, err
	}
	warehouseID, err := ParseID("warehouseId", l.WarehouseID)
	if err != nil {
		return posting.Line{}, err
	}

	line := posting.Line{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		Kind:          l.Kind,
		Quantity:      l.Quantity,
		UnitCost:      l.UnitCost,
		CostingMethod: l.CostingMethod,
	}
	if l.ExpirationDate != "" {
		exp, err := ParseDate("expirationDate", l.ExpirationDate)
		if err != nil {
			return posting.Line{}, err
		}
		line.ExpirationDate = &exp
	}
	return line, nil
}
