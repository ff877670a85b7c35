// Package report_repo provides PostgreSQL queries behind stock reports.
package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kardex/internal/domain/reports"
	"kardex/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.ValuationRepository.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// valuationQuery sums signed quantities and costs per unit up to AsOf.
// Units without movements in range report zero.
func (r *ReportRepo) valuationQuery(filter reports.ValuationFilter) squirrel.SelectBuilder {
	q := r.builder.Select(
		"u.id AS stock_unit_id",
		"u.product_id",
		"p.name AS product_name",
		"u.warehouse_id",
		"w.name AS warehouse_name",
		"u.costing_method",
		"COALESCE(SUM(CASE WHEN m.kind = 'ENTRY' THEN m.quantity ELSE -m.quantity END), 0) AS quantity",
		"COALESCE(SUM(CASE WHEN m.kind = 'ENTRY' THEN m.total_cost ELSE -m.total_cost END), 0) AS value",
	).
		From("stock_units u").
		Join("cat_nomenclature p ON p.id = u.product_id").
		Join("cat_warehouses w ON w.id = u.warehouse_id").
		LeftJoin("stock_movements m ON m.stock_unit_id = u.id AND m.effective_date <= ?", filter.AsOf)

	if len(filter.WarehouseIDs) > 0 {
		q = q.Where(squirrel.Eq{"u.warehouse_id": filter.WarehouseIDs})
	}
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"u.product_id": filter.ProductIDs})
	}

	return q.
		GroupBy("u.id", "u.product_id", "p.name", "u.warehouse_id", "w.name", "u.costing_method").
		OrderBy("w.name", "p.name")
}

// StockValuation implements reports.ValuationRepository.
func (r *ReportRepo) StockValuation(ctx context.Context, filter reports.ValuationFilter) ([]reports.ValuationItem, error) {
	sql, args, err := r.valuationQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []reports.ValuationItem
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("stock valuation report: %w", err)
	}
	return items, nil
}

var _ reports.ValuationRepository = (*ReportRepo)(nil)
