package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/registers/movement"
)

// MovementRepo is the movement.Repository view of a Store.
type MovementRepo struct{ s *Store }

// Movements returns the movement repository view.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

func cloneMovement(m entity.Movement) *entity.Movement {
	if m.ConsumedLots != nil {
		m.ConsumedLots = append([]entity.ConsumedLot(nil), m.ConsumedLots...)
	}
	return &m
}

// Create implements movement.Repository.
func (r *MovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.units[m.StockUnitID]; !ok {
		return apperror.NewStockUnitNotFound(m.StockUnitID)
	}
	if _, ok := r.s.movements[m.ID]; ok {
		return apperror.NewConflict("movement already exists").WithDetail("movement_id", m.ID)
	}
	put(ctx, &r.s.mu, r.s.movements, m.ID, *cloneMovement(*m))
	return nil
}

// Get implements movement.Repository.
func (r *MovementRepo) Get(_ context.Context, movementID id.ID) (*entity.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.movements[movementID]
	if !ok {
		return nil, apperror.NewNotFound("movement", movementID)
	}
	return cloneMovement(m), nil
}

func (r *MovementRepo) filter(unitID id.ID, keep func(m *entity.Movement) bool) []*entity.Movement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Movement
	for _, m := range r.s.movements {
		if m.StockUnitID == unitID && keep(&m) {
			out = append(out, cloneMovement(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FindFrom implements movement.Repository.
func (r *MovementRepo) FindFrom(_ context.Context, unitID id.ID, from time.Time) ([]*entity.Movement, error) {
	return r.filter(unitID, func(m *entity.Movement) bool { return !m.EffectiveDate.Before(from) }), nil
}

// Range implements movement.Repository.
func (r *MovementRepo) Range(_ context.Context, unitID id.ID, from, to time.Time) ([]*entity.Movement, error) {
	return r.filter(unitID, func(m *entity.Movement) bool {
		return !m.EffectiveDate.Before(from) && !m.EffectiveDate.After(to)
	}), nil
}

// LastBefore implements movement.Repository.
func (r *MovementRepo) LastBefore(_ context.Context, unitID id.ID, before time.Time) (*entity.Movement, error) {
	all := r.filter(unitID, func(m *entity.Movement) bool { return m.EffectiveDate.Before(before) })
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

// ExistsAfter implements movement.Repository.
func (r *MovementRepo) ExistsAfter(_ context.Context, unitID id.ID, date time.Time) (bool, error) {
	return len(r.filter(unitID, func(m *entity.Movement) bool { return m.EffectiveDate.After(date) })) > 0, nil
}

// UpdateCosts implements movement.Repository.
func (r *MovementRepo) UpdateCosts(ctx context.Context, movements []*entity.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range movements {
		stored, ok := r.s.movements[m.ID]
		if !ok {
			return apperror.NewNotFound("movement", m.ID)
		}
		stored.UnitCost = m.UnitCost
		stored.TotalCost = m.TotalCost
		stored.BalanceQuantity = m.BalanceQuantity
		stored.BalanceUnitCost = m.BalanceUnitCost
		stored.ConsumedLots = append([]entity.ConsumedLot(nil), m.ConsumedLots...)
		stored.RecalculatedAt = m.RecalculatedAt
		put(ctx, &r.s.mu, r.s.movements, m.ID, stored)
	}
	return nil
}

// Totals implements movement.Repository.
func (r *MovementRepo) Totals(_ context.Context, unitID id.ID, before time.Time) (movement.Totals, error) {
	t := movement.Totals{Quantity: decimal.Zero, Value: decimal.Zero}
	for _, m := range r.filter(unitID, func(m *entity.Movement) bool { return m.EffectiveDate.Before(before) }) {
		t.Quantity = t.Quantity.Add(m.SignedQuantity())
		t.Value = t.Value.Add(m.SignedTotal())
		t.Count++
	}
	return t, nil
}
