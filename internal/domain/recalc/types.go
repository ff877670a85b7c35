// Package recalc re-derives costs, lot quantities and document totals of
// stock units after a movement is inserted before movements already
// recorded.
package recalc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/registers/movement"
)

// State is a step of a recalculation run.
type State string

const (
	StateValidating           State = "validating"
	StateReplayingLots        State = "replaying_lots"
	StateRecomputingMovements State = "recomputing_movements"
	StateUpdatingDocuments    State = "updating_documents"
	StateCommitting           State = "committing"
	StateCommitted            State = "committed"
	StateRolledBack           State = "rolled_back"
)

// UnitRequest asks for the cascade of one stock unit.
type UnitRequest struct {
	UnitID id.ID

	// FromDate is the insertion point. Movements dated on or after it are
	// recomputed.
	FromDate time.Time

	// Pending are retroactive movements stored inside the unit's savepoint
	// before the replay, so a failed unit leaves none of them behind.
	Pending []movement.Draft
}

// Request is one recalculation run.
type Request struct {
	OwnerID id.ID
	Reason  string
	Units   []UnitRequest
}

// UnitError reports a unit whose cascade was rolled back.
type UnitError struct {
	UnitID id.ID              `json:"stockUnitId"`
	Err    *apperror.AppError `json:"error"`
}

// Result summarizes a run.
type Result struct {
	RunID             id.ID         `json:"runId"`
	MovementsAffected int           `json:"movementsAffected"`
	LotsUpdated       int           `json:"lotsUpdated"`
	UnitsUpdated      int           `json:"unitsUpdated"`
	DocumentsUpdated  int           `json:"documentsUpdated"`
	Errors            []UnitError   `json:"errors"`
	Elapsed           time.Duration `json:"elapsed"`

	// Inserted are the stored pending movements with their final costs.
	Inserted []*entity.Movement `json:"inserted,omitempty"`
}

// CostSnapshot is the recomputable part of a movement.
type CostSnapshot struct {
	UnitCost        decimal.Decimal `json:"unitCost"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	BalanceQuantity decimal.Decimal `json:"balanceQuantity"`
	BalanceUnitCost decimal.Decimal `json:"balanceUnitCost"`
}

func snapshotOf(m *entity.Movement) CostSnapshot {
	return CostSnapshot{
		UnitCost:        m.UnitCost,
		TotalCost:       m.TotalCost,
		BalanceQuantity: m.BalanceQuantity,
		BalanceUnitCost: m.BalanceUnitCost,
	}
}

func (s CostSnapshot) equal(o CostSnapshot) bool {
	return s.UnitCost.Equal(o.UnitCost) && s.TotalCost.Equal(o.TotalCost) &&
		s.BalanceQuantity.Equal(o.BalanceQuantity) && s.BalanceUnitCost.Equal(o.BalanceUnitCost)
}

// CostChange is one movement repriced by a cascade.
type CostChange struct {
	MovementID id.ID        `json:"movementId"`
	Before     CostSnapshot `json:"before"`
	After      CostSnapshot `json:"after"`
}

// CascadeAudit is the audit record of one unit's cascade.
type CascadeAudit struct {
	RunID    id.ID
	OwnerID  id.ID
	UnitID   id.ID
	Reason   string
	FromDate time.Time
	Changes  []CostChange
}

// Auditor stores cascade audit records in the caller's transaction.
type Auditor interface {
	RecordCascade(ctx context.Context, audit CascadeAudit) error
}

// CascadeEvent is emitted once per committed run.
type CascadeEvent struct {
	RunID             id.ID     `json:"runId"`
	OwnerID           id.ID     `json:"ownerId"`
	Reason            string    `json:"reason,omitempty"`
	Units             []id.ID   `json:"stockUnitIds"`
	FailedUnits       []id.ID   `json:"failedStockUnitIds,omitempty"`
	FromDate          time.Time `json:"fromDate"`
	MovementsAffected int       `json:"movementsAffected"`
	LotsUpdated       int       `json:"lotsUpdated"`
	UnitsUpdated      int       `json:"unitsUpdated"`
}

// EventPublisher records events in the caller's transaction (outbox).
type EventPublisher interface {
	CascadeCompleted(ctx context.Context, event CascadeEvent) error
}
