package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/catalogs"
	"kardex/internal/domain/costing"
	"kardex/pkg/logger"
)

// Ledger owns every mutation of stock units and lots.
// Transactions are managed by the caller (posting engine, recalculator).
type Ledger struct {
	repo       Repository
	products   catalogs.ProductCatalog
	warehouses catalogs.WarehouseCatalog
}

// NewLedger creates a new stock ledger.
func NewLedger(repo Repository, products catalogs.ProductCatalog, warehouses catalogs.WarehouseCatalog) *Ledger {
	return &Ledger{
		repo:       repo,
		products:   products,
		warehouses: warehouses,
	}
}

// EnsureUnit returns the unit of (product, warehouse), creating it with
// method when it does not exist. An empty method means weighted average.
// The costing method of an existing unit never changes.
func (l *Ledger) EnsureUnit(ctx context.Context, productID, warehouseID id.ID, method entity.CostingMethod) (*entity.StockUnit, error) {
	unit, err := l.repo.FindUnit(ctx, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("find stock unit: %w", err)
	}
	if unit != nil {
		if method != "" && method != unit.CostingMethod {
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "Costing method of a stock unit cannot change").
				WithDetail("stock_unit_id", unit.ID).
				WithDetail("costing_method", unit.CostingMethod).
				WithDetail("requested_method", method)
		}
		return unit, nil
	}

	if err := l.checkCatalogs(ctx, productID, warehouseID); err != nil {
		return nil, err
	}

	if method == "" {
		method = entity.CostingWeightedAverage
	}
	unit = entity.NewStockUnit(productID, warehouseID, method)
	if err := unit.Validate(ctx); err != nil {
		return nil, err
	}

	created, err := l.repo.CreateUnit(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("create stock unit: %w", err)
	}

	logger.Info(ctx, "stock unit opened",
		"stock_unit_id", created.ID,
		"product_id", productID,
		"warehouse_id", warehouseID,
		"costing_method", created.CostingMethod,
	)
	return created, nil
}

func (l *Ledger) checkCatalogs(ctx context.Context, productID, warehouseID id.ID) error {
	ok, err := l.products.Exists(ctx, productID)
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !ok {
		return apperror.NewStockUnitNotFound(nil).
			WithDetail("missing", "product").
			WithDetail("product_id", productID)
	}

	ok, err = l.warehouses.Exists(ctx, warehouseID)
	if err != nil {
		return fmt.Errorf("check warehouse: %w", err)
	}
	if !ok {
		return apperror.NewStockUnitNotFound(nil).
			WithDetail("missing", "warehouse").
			WithDetail("warehouse_id", warehouseID)
	}
	return nil
}

// GetUnit reads a unit without locking.
func (l *Ledger) GetUnit(ctx context.Context, unitID id.ID) (*entity.StockUnit, error) {
	return l.repo.GetUnit(ctx, unitID)
}

// Lots returns the active lots of a unit in consumption order.
func (l *Ledger) Lots(ctx context.Context, unitID id.ID) ([]entity.Lot, error) {
	return l.repo.ActiveLots(ctx, unitID)
}

// LockUnit reads the unit and locks its row until the transaction ends.
// Every mutation of a unit happens under this lock.
func (l *Ledger) LockUnit(ctx context.Context, unitID id.ID) (*entity.StockUnit, error) {
	return l.repo.GetUnitForUpdate(ctx, unitID)
}

// CreateLot receives quantity at unitCost into unit. The unit must be locked.
func (l *Ledger) CreateLot(ctx context.Context, unit *entity.StockUnit, movementID id.ID, date time.Time,
	quantity, unitCost decimal.Decimal, expiration *time.Time) (*entity.Lot, error) {
	lot := NewLot(unit.ID, movementID, date, quantity, unitCost, expiration)
	lot.Active = true
	if err := lot.Validate(ctx); err != nil {
		return nil, err
	}

	pos, err := NewPosition(unit, nil)
	if err != nil {
		return nil, err
	}
	pos.Receive(lot)

	if err := l.repo.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	if err := l.repo.SaveUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("save stock unit: %w", err)
	}
	return lot, nil
}

// Consume issues quantity from the active lots of unit through its costing
// strategy. The unit must be locked. Fails with INSUFFICIENT_STOCK when the
// active lots hold less than quantity.
func (l *Ledger) Consume(ctx context.Context, unit *entity.StockUnit, quantity decimal.Decimal, date time.Time) (costing.Consumption, error) {
	lots, err := l.repo.ActiveLots(ctx, unit.ID)
	if err != nil {
		return costing.Consumption{}, fmt.Errorf("load active lots: %w", err)
	}

	eligible := lots[:0]
	for _, lot := range lots {
		if !lot.EntryDate.After(date) {
			eligible = append(eligible, lot)
		}
	}

	pos, err := NewPosition(unit, eligible)
	if err != nil {
		return costing.Consumption{}, err
	}
	c, err := pos.Issue(quantity)
	if err != nil {
		return costing.Consumption{}, err
	}

	if err := l.repo.SaveLots(ctx, pos.Touched()); err != nil {
		return costing.Consumption{}, fmt.Errorf("save lots: %w", err)
	}
	if err := l.repo.SaveUnit(ctx, unit); err != nil {
		return costing.Consumption{}, fmt.Errorf("save stock unit: %w", err)
	}
	return c, nil
}

// NewLot builds a full lot at persisted scale. It is inactive until
// received.
func NewLot(unitID, movementID id.ID, date time.Time, quantity, unitCost decimal.Decimal, expiration *time.Time) *entity.Lot {
	qty := types.RoundQuantity(quantity)
	return &entity.Lot{
		ID:              id.New(),
		StockUnitID:     unitID,
		MovementID:      movementID,
		EntryDate:       date,
		InitialQuantity: qty,
		CurrentQuantity: qty,
		UnitCost:        types.RoundUnitCost(unitCost),
		ExpirationDate:  expiration,
	}
}

// RegisterLot stores a lot received out of order. It stays inactive and
// outside the unit's quantity until a replay reaches its entry movement.
func (l *Ledger) RegisterLot(ctx context.Context, lot *entity.Lot) error {
	lot.Active = false
	if err := lot.Validate(ctx); err != nil {
		return err
	}
	if err := l.repo.CreateLot(ctx, lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}
