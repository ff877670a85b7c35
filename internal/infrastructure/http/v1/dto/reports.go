package dto

import (
	"kardex/internal/domain/reports"
)

// ValuationQuery represents request for the stock valuation report.
type ValuationQuery struct {
	AsOf         string   `form:"asOf"`
	WarehouseIDs []string `form:"warehouseId"`
	ProductIDs   []string `form:"productId"`
	ExcludeZero  bool     `form:"excludeZero"`
}

// ToFilter parses the query.
func (q *ValuationQuery) ToFilter() (reports.ValuationFilter, error) {
	var (
		f   reports.ValuationFilter
		err error
	)
	if f.AsOf, err = ParseOptionalDate("asOf", q.AsOf); err != nil {
		return f, err
	}
	if f.WarehouseIDs, err = ParseIDs("warehouseId", q.WarehouseIDs); err != nil {
		return f, err
	}
	if f.ProductIDs, err = ParseIDs("productId", q.ProductIDs); err != nil {
		return f, err
	}
	f.ExcludeZero = q.ExcludeZero
	return f, nil
}
