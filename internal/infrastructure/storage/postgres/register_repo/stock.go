// Package register_repo provides PostgreSQL implementations of the stock and
// movement ledgers' repositories.
package register_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/registers/stock"
	"kardex/internal/infrastructure/storage/postgres"
)

const (
	stockUnitsTable = "stock_units"
	stockLotsTable  = "stock_lots"
)

var (
	unitColumns = postgres.ExtractDBColumns[entity.StockUnit]()
	lotColumns  = postgres.ExtractDBColumns[entity.Lot]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchExecutor
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		batch:   postgres.NewBatchExecutor(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StockRepo) getUnit(ctx context.Context, q squirrel.SelectBuilder) (*entity.StockUnit, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var unit entity.StockUnit
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &unit, sql, args...); err != nil {
		return nil, err
	}
	return &unit, nil
}

// GetUnit implements stock.Repository.
func (r *StockRepo) GetUnit(ctx context.Context, unitID id.ID) (*entity.StockUnit, error) {
	unit, err := r.getUnit(ctx, r.builder.Select(unitColumns...).From(stockUnitsTable).
		Where(squirrel.Eq{"id": unitID}))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewStockUnitNotFound(unitID)
		}
		return nil, fmt.Errorf("get stock unit: %w", err)
	}
	return unit, nil
}

// GetUnitForUpdate implements stock.Repository.
func (r *StockRepo) GetUnitForUpdate(ctx context.Context, unitID id.ID) (*entity.StockUnit, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, apperror.NewInternal(fmt.Errorf("lock stock unit %s: no transaction in context", unitID))
	}
	unit, err := r.getUnit(ctx, r.builder.Select(unitColumns...).From(stockUnitsTable).
		Where(squirrel.Eq{"id": unitID}).
		Suffix("FOR UPDATE"))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewStockUnitNotFound(unitID)
		}
		return nil, fmt.Errorf("lock stock unit: %w", err)
	}
	return unit, nil
}

// FindUnit implements stock.Repository.
func (r *StockRepo) FindUnit(ctx context.Context, productID, warehouseID id.ID) (*entity.StockUnit, error) {
	unit, err := r.getUnit(ctx, r.builder.Select(unitColumns...).From(stockUnitsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		}))
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find stock unit: %w", err)
	}
	return unit, nil
}

// CreateUnit implements stock.Repository.
func (r *StockRepo) CreateUnit(ctx context.Context, unit *entity.StockUnit) (*entity.StockUnit, error) {
	q := r.builder.Insert(stockUnitsTable).
		SetMap(postgres.StructToMap(unit)).
		Suffix("ON CONFLICT (product_id, warehouse_id) DO NOTHING RETURNING " + strings.Join(unitColumns, ", "))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	var created entity.StockUnit
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &created, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			// another transaction created the pair first
			existing, findErr := r.FindUnit(ctx, unit.ProductID, unit.WarehouseID)
			if findErr != nil {
				return nil, findErr
			}
			if existing == nil {
				return nil, apperror.NewConflict("stock unit created concurrently is not visible yet").
					WithDetail("product_id", unit.ProductID).
					WithDetail("warehouse_id", unit.WarehouseID)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("insert stock unit: %w", err)
	}
	return &created, nil
}

// SaveUnit implements stock.Repository.
func (r *StockRepo) SaveUnit(ctx context.Context, unit *entity.StockUnit) error {
	now := time.Now().UTC()
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		UPDATE stock_units
		SET current_quantity = $1,
		    current_average_cost = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		RETURNING version
	`, unit.CurrentQuantity, unit.CurrentAverageCost, now, unit.ID).Scan(&unit.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewStockUnitNotFound(unit.ID)
		}
		return fmt.Errorf("update stock unit: %w", err)
	}
	unit.UpdatedAt = now
	return nil
}

// CreateLot implements stock.Repository.
func (r *StockRepo) CreateLot(ctx context.Context, lot *entity.Lot) error {
	sql, args, err := r.builder.Insert(stockLotsTable).
		SetMap(postgres.StructToMap(lot)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// ActiveLots implements stock.Repository.
func (r *StockRepo) ActiveLots(ctx context.Context, unitID id.ID) ([]entity.Lot, error) {
	sql, args, err := r.builder.Select(lotColumns...).From(stockLotsTable).
		Where(squirrel.Eq{"stock_unit_id": unitID, "active": true}).
		Where(squirrel.Gt{"current_quantity": 0}).
		OrderBy("entry_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []entity.Lot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	return lots, nil
}

// SaveLots implements stock.Repository.
func (r *StockRepo) SaveLots(ctx context.Context, lots []entity.Lot) error {
	queries := make([]postgres.BatchQuery, 0, len(lots))
	for _, l := range lots {
		queries = append(queries, postgres.BatchQuery{
			SQL:  `UPDATE stock_lots SET current_quantity = $1, active = $2 WHERE id = $3`,
			Args: []any{l.CurrentQuantity, l.Active, l.ID},
		})
	}
	affected, err := r.batch.ExecuteBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("update lots: %w", err)
	}
	for i, n := range affected {
		if n == 0 {
			return apperror.NewLotNotFound(lots[i].ID)
		}
	}
	return nil
}

// RestoreConsumedFrom implements stock.Repository.
func (r *StockRepo) RestoreConsumedFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
		WITH consumed AS (
			DELETE FROM stock_movement_lots ml
			USING stock_movements m
			WHERE ml.movement_id = m.id
			  AND m.stock_unit_id = $1
			  AND m.effective_date >= $2
			RETURNING ml.lot_id, ml.quantity
		), per_lot AS (
			SELECT lot_id, SUM(quantity) AS quantity FROM consumed GROUP BY lot_id
		)
		UPDATE stock_lots l
		SET current_quantity = l.current_quantity + p.quantity,
		    active = TRUE
		FROM per_lot p
		WHERE l.id = p.lot_id
		  AND l.entry_date < $2
		RETURNING l.id
	`, unitID, from)
	if err != nil {
		return nil, fmt.Errorf("restore consumed lots: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[id.ID])
	if err != nil {
		return nil, fmt.Errorf("restore consumed lots: %w", err)
	}
	return ids, nil
}

// ResetLotsFrom implements stock.Repository.
func (r *StockRepo) ResetLotsFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
		UPDATE stock_lots
		SET current_quantity = initial_quantity,
		    active = TRUE
		WHERE stock_unit_id = $1
		  AND entry_date >= $2
		RETURNING id
	`, unitID, from)
	if err != nil {
		return nil, fmt.Errorf("reset lots: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[id.ID])
	if err != nil {
		return nil, fmt.Errorf("reset lots: %w", err)
	}
	return ids, nil
}

var _ stock.Repository = (*StockRepo)(nil)
