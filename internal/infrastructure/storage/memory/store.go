// Package memory provides in-memory implementations of the engine's
// repositories. Writes register undo functions with tx.OnRollback so state
// follows the transactions and savepoints of tx.Fake. Used by unit tests and
// by dry runs of the CLI.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/domain/catalogs"
	"kardex/internal/domain/documents"
	"kardex/internal/domain/periods"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
)

// Store holds every table in maps.
type Store struct {
	mu sync.Mutex

	units     map[id.ID]entity.StockUnit
	lots      map[id.ID]entity.Lot
	movements map[id.ID]entity.Movement
	docs      map[id.ID]documents.Totals
	lines     map[id.ID][]documents.LineCost

	products   map[id.ID]bool
	warehouses map[id.ID]bool
	closed     map[id.ID]time.Time

	// Locked records every unit locked, in order.
	Locked []id.ID
}

var (
	_ stock.Repository          = (*Store)(nil)
	_ movement.Repository       = (*MovementRepo)(nil)
	_ documents.Store           = (*DocumentStore)(nil)
	_ periods.LockRepository    = (*Store)(nil)
	_ catalogs.ProductCatalog   = (*ProductCatalog)(nil)
	_ catalogs.WarehouseCatalog = (*WarehouseCatalog)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		units:      make(map[id.ID]entity.StockUnit),
		lots:       make(map[id.ID]entity.Lot),
		movements:  make(map[id.ID]entity.Movement),
		docs:       make(map[id.ID]documents.Totals),
		lines:      make(map[id.ID][]documents.LineCost),
		products:   make(map[id.ID]bool),
		warehouses: make(map[id.ID]bool),
		closed:     make(map[id.ID]time.Time),
	}
}

// put stores v under k and registers the undo with the innermost tx scope.
func put[K comparable, V any](ctx context.Context, mu *sync.Mutex, m map[K]V, k K, v V) {
	prev, had := m[k]
	m[k] = v
	tx.OnRollback(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

// --- catalogs and period locks ---

// AddProduct registers a product id.
func (s *Store) AddProduct(productID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = true
}

// AddWarehouse registers a warehouse id.
func (s *Store) AddWarehouse(warehouseID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[warehouseID] = true
}

// ProductCatalog answers from the store's products.
type ProductCatalog struct{ s *Store }

// Exists implements catalogs.ProductCatalog.
func (c *ProductCatalog) Exists(_ context.Context, productID id.ID) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.products[productID], nil
}

// WarehouseCatalog answers from the store's warehouses.
type WarehouseCatalog struct{ s *Store }

// Exists implements catalogs.WarehouseCatalog.
func (c *WarehouseCatalog) Exists(_ context.Context, warehouseID id.ID) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.warehouses[warehouseID], nil
}

// Products returns the product catalog view.
func (s *Store) Products() *ProductCatalog { return &ProductCatalog{s: s} }

// Warehouses returns the warehouse catalog view.
func (s *Store) Warehouses() *WarehouseCatalog { return &WarehouseCatalog{s: s} }

// CloseUntil closes the periods of owner up to and including date.
func (s *Store) CloseUntil(ownerID id.ID, date time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[ownerID] = date
}

// ClosedUntil implements periods.LockRepository.
func (s *Store) ClosedUntil(_ context.Context, ownerID id.ID) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.closed[ownerID]; ok {
		return &t, nil
	}
	return nil, nil
}

// --- stock.Repository ---

// GetUnit implements stock.Repository.
func (s *Store) GetUnit(_ context.Context, unitID id.ID) (*entity.StockUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return nil, apperror.NewStockUnitNotFound(unitID)
	}
	return &u, nil
}

// GetUnitForUpdate implements stock.Repository.
func (s *Store) GetUnitForUpdate(ctx context.Context, unitID id.ID) (*entity.StockUnit, error) {
	u, err := s.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Locked = append(s.Locked, unitID)
	s.mu.Unlock()
	return u, nil
}

// FindUnit implements stock.Repository.
func (s *Store) FindUnit(_ context.Context, productID, warehouseID id.ID) (*entity.StockUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.ProductID == productID && u.WarehouseID == warehouseID {
			return &u, nil
		}
	}
	return nil, nil
}

// CreateUnit implements stock.Repository.
func (s *Store) CreateUnit(ctx context.Context, unit *entity.StockUnit) (*entity.StockUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		if u.ProductID == unit.ProductID && u.WarehouseID == unit.WarehouseID {
			return &u, nil
		}
	}
	put(ctx, &s.mu, s.units, unit.ID, *unit)
	created := *unit
	return &created, nil
}

// SaveUnit implements stock.Repository.
func (s *Store) SaveUnit(ctx context.Context, unit *entity.StockUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unit.ID]; !ok {
		return apperror.NewStockUnitNotFound(unit.ID)
	}
	unit.Version++
	unit.UpdatedAt = time.Now().UTC()
	put(ctx, &s.mu, s.units, unit.ID, *unit)
	return nil
}

// CreateLot implements stock.Repository.
func (s *Store) CreateLot(ctx context.Context, lot *entity.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(ctx, &s.mu, s.lots, lot.ID, *lot)
	return nil
}

// ActiveLots implements stock.Repository.
func (s *Store) ActiveLots(_ context.Context, unitID id.ID) ([]entity.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Lot
	for _, l := range s.lots {
		if l.StockUnitID == unitID && l.Active && l.CurrentQuantity.IsPositive() {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(&out[j]) })
	return out, nil
}

// Lots returns every lot of the unit in FIFO order.
func (s *Store) Lots(unitID id.ID) []entity.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Lot
	for _, l := range s.lots {
		if l.StockUnitID == unitID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(&out[j]) })
	return out
}

// SaveLots implements stock.Repository.
func (s *Store) SaveLots(ctx context.Context, lots []entity.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lots {
		stored, ok := s.lots[l.ID]
		if !ok {
			return apperror.NewLotNotFound(l.ID)
		}
		stored.CurrentQuantity = l.CurrentQuantity
		stored.Active = l.Active
		put(ctx, &s.mu, s.lots, l.ID, stored)
	}
	return nil
}

// RestoreConsumedFrom implements stock.Repository.
func (s *Store) RestoreConsumedFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := make(map[id.ID]decimal.Decimal)
	for _, m := range s.movements {
		if m.StockUnitID != unitID || m.EffectiveDate.Before(from) || len(m.ConsumedLots) == 0 {
			continue
		}
		for _, c := range m.ConsumedLots {
			restored[c.LotID] = restored[c.LotID].Add(c.Quantity)
		}
		m.ConsumedLots = nil
		put(ctx, &s.mu, s.movements, m.ID, m)
	}

	var ids []id.ID
	for lotID, qty := range restored {
		l, ok := s.lots[lotID]
		if !ok {
			return nil, apperror.NewLotNotFound(lotID)
		}
		if !l.EntryDate.Before(from) {
			continue
		}
		l.CurrentQuantity = l.CurrentQuantity.Add(qty)
		l.Active = true
		put(ctx, &s.mu, s.lots, lotID, l)
		ids = append(ids, lotID)
	}
	return ids, nil
}

// ResetLotsFrom implements stock.Repository.
func (s *Store) ResetLotsFrom(ctx context.Context, unitID id.ID, from time.Time) ([]id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []id.ID
	for _, l := range s.lots {
		if l.StockUnitID != unitID || l.EntryDate.Before(from) {
			continue
		}
		l.CurrentQuantity = l.InitialQuantity
		l.Active = true
		put(ctx, &s.mu, s.lots, l.ID, l)
		ids = append(ids, l.ID)
	}
	return ids, nil
}
