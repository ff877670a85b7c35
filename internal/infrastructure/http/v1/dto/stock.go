package dto

import (
	"kardex/internal/core/entity"
)

// StockUnitResponse is a stock unit with its active lots.
type StockUnitResponse struct {
	*entity.StockUnit
	Lots []entity.Lot `json:"lots"`
}

// NewStockUnitResponse builds the response; lots may be nil.
func NewStockUnitResponse(unit *entity.StockUnit, lots []entity.Lot) StockUnitResponse {
	if lots == nil {
		lots = []entity.Lot{}
	}
	return StockUnitResponse{StockUnit: unit, Lots: lots}
}

// KardexQuery selects the kardex period.
type KardexQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}
