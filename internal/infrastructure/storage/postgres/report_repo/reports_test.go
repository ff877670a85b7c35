package report_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/id"
	"kardex/internal/domain/reports"
)

func TestValuationQuery(t *testing.T) {
	repo := NewReportRepo(nil)
	asOf := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("no filters", func(t *testing.T) {
		sql, args, err := repo.valuationQuery(reports.ValuationFilter{AsOf: asOf}).ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "LEFT JOIN stock_movements m ON m.stock_unit_id = u.id AND m.effective_date <= $1")
		assert.NotContains(t, sql, "WHERE")
		assert.Equal(t, []any{asOf}, args)
	})

	t.Run("warehouse and product filters", func(t *testing.T) {
		wh := id.New()
		p1, p2 := id.New(), id.New()

		sql, args, err := repo.valuationQuery(reports.ValuationFilter{
			AsOf:         asOf,
			WarehouseIDs: []id.ID{wh},
			ProductIDs:   []id.ID{p1, p2},
		}).ToSql()
		require.NoError(t, err)

		assert.Contains(t, sql, "WHERE u.warehouse_id IN ($2) AND u.product_id IN ($3,$4)")
		assert.True(t, strings.HasSuffix(sql, "ORDER BY w.name, p.name"))
		assert.Equal(t, []any{asOf, wh, p1, p2}, args)
	})
}
