package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/infrastructure/storage/postgres"
)

const (
	movementsTable     = "stock_movements"
	movementLotsTable  = "stock_movement_lots"
	replayOrder        = "effective_date, id"
	replayOrderReverse = "effective_date DESC, id DESC"
)

var (
	movementColumns    = postgres.ExtractDBColumns[entity.Movement]()
	movementLotColumns = []string{"movement_id", "seq", "lot_id", "quantity", "unit_cost"}
)

// MovementRepo implements movement.Repository.
// Consumed lots live in stock_movement_lots, keyed by (movement_id, seq).
type MovementRepo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	batch    *postgres.BatchExecutor
	builder  squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		batch:    postgres.NewBatchExecutor(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create implements movement.Repository.
func (r *MovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	sql, args, err := r.builder.Insert(movementsTable).
		SetMap(postgres.StructToMap(m)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return r.insertConsumed(ctx, []*entity.Movement{m})
}

func (r *MovementRepo) insertConsumed(ctx context.Context, movements []*entity.Movement) error {
	var rows [][]any
	for _, m := range movements {
		for seq, c := range m.ConsumedLots {
			rows = append(rows, []any{m.ID, seq, c.LotID, c.Quantity, c.UnitCost})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := r.inserter.CopyFromSlice(ctx, movementLotsTable, movementLotColumns, rows); err != nil {
		return fmt.Errorf("insert consumed lots: %w", err)
	}
	return nil
}

// Get implements movement.Repository.
func (r *MovementRepo) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	movements, err := r.selectMovements(ctx, r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID}))
	if err != nil {
		return nil, fmt.Errorf("get movement: %w", err)
	}
	if len(movements) == 0 {
		return nil, apperror.NewNotFound("movement", movementID)
	}
	return movements[0], nil
}

// FindFrom implements movement.Repository.
func (r *MovementRepo) FindFrom(ctx context.Context, unitID id.ID, from time.Time) ([]*entity.Movement, error) {
	movements, err := r.selectMovements(ctx, r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"stock_unit_id": unitID}).
		Where(squirrel.GtOrEq{"effective_date": from}).
		OrderBy(replayOrder))
	if err != nil {
		return nil, fmt.Errorf("find movements: %w", err)
	}
	return movements, nil
}

// Range implements movement.Repository.
func (r *MovementRepo) Range(ctx context.Context, unitID id.ID, from, to time.Time) ([]*entity.Movement, error) {
	movements, err := r.selectMovements(ctx, r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"stock_unit_id": unitID}).
		Where(squirrel.GtOrEq{"effective_date": from}).
		Where(squirrel.LtOrEq{"effective_date": to}).
		OrderBy(replayOrder))
	if err != nil {
		return nil, fmt.Errorf("range movements: %w", err)
	}
	return movements, nil
}

// LastBefore implements movement.Repository.
func (r *MovementRepo) LastBefore(ctx context.Context, unitID id.ID, before time.Time) (*entity.Movement, error) {
	movements, err := r.selectMovements(ctx, r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"stock_unit_id": unitID}).
		Where(squirrel.Lt{"effective_date": before}).
		OrderBy(replayOrderReverse).
		Limit(1))
	if err != nil {
		return nil, fmt.Errorf("last movement: %w", err)
	}
	if len(movements) == 0 {
		return nil, nil
	}
	return movements[0], nil
}

// ExistsAfter implements movement.Repository.
func (r *MovementRepo) ExistsAfter(ctx context.Context, unitID id.ID, date time.Time) (bool, error) {
	var exists bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements
			WHERE stock_unit_id = $1 AND effective_date > $2
		)
	`, unitID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check later movements: %w", err)
	}
	return exists, nil
}

// UpdateCosts implements movement.Repository.
func (r *MovementRepo) UpdateCosts(ctx context.Context, movements []*entity.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ids := make([]id.ID, 0, len(movements))
	queries := make([]postgres.BatchQuery, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ID)
		queries = append(queries, postgres.BatchQuery{
			SQL: `UPDATE stock_movements
				SET unit_cost = $1, total_cost = $2,
				    balance_quantity = $3, balance_unit_cost = $4,
				    recalculated_at = $5
				WHERE id = $6`,
			Args: []any{m.UnitCost, m.TotalCost, m.BalanceQuantity, m.BalanceUnitCost, now, m.ID},
		})
	}

	affected, err := r.batch.ExecuteBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("update movement costs: %w", err)
	}
	for i, n := range affected {
		if n == 0 {
			return apperror.NewNotFound("movement", movements[i].ID)
		}
	}
	for _, m := range movements {
		m.RecalculatedAt = &now
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM stock_movement_lots WHERE movement_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("clear consumed lots: %w", err)
	}
	return r.insertConsumed(ctx, movements)
}

// Totals implements movement.Repository.
func (r *MovementRepo) Totals(ctx context.Context, unitID id.ID, before time.Time) (movement.Totals, error) {
	var totals movement.Totals
	err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &totals, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'ENTRY' THEN quantity ELSE -quantity END), 0) AS quantity,
			COALESCE(SUM(CASE WHEN kind = 'ENTRY' THEN total_cost ELSE -total_cost END), 0) AS value,
			COUNT(*) AS movement_count
		FROM stock_movements
		WHERE stock_unit_id = $1 AND effective_date < $2
	`, unitID, before)
	if err != nil {
		return movement.Totals{}, fmt.Errorf("movement totals: %w", err)
	}
	return totals, nil
}

func (r *MovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]*entity.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*entity.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, err
	}
	if err := r.loadConsumed(ctx, movements); err != nil {
		return nil, err
	}
	return movements, nil
}

type consumedRow struct {
	MovementID id.ID `db:"movement_id"`
	entity.ConsumedLot
}

func (r *MovementRepo) loadConsumed(ctx context.Context, movements []*entity.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	byID := make(map[id.ID]*entity.Movement, len(movements))
	ids := make([]id.ID, 0, len(movements))
	for _, m := range movements {
		if m.Kind.Consumes() {
			byID[m.ID] = m
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var rows []consumedRow
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, `
		SELECT movement_id, lot_id, quantity, unit_cost
		FROM stock_movement_lots
		WHERE movement_id = ANY($1)
		ORDER BY movement_id, seq
	`, ids)
	if err != nil {
		return fmt.Errorf("load consumed lots: %w", err)
	}
	for _, row := range rows {
		m := byID[row.MovementID]
		m.ConsumedLots = append(m.ConsumedLots, row.ConsumedLot)
	}
	return nil
}

var _ movement.Repository = (*MovementRepo)(nil)
