package recalc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/core/types"
	"kardex/internal/domain/documents"
	"kardex/internal/domain/periods"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
	"kardex/pkg/logger"
)

var tracer = otel.Tracer("kardex/recalc")

// Recalculator runs cascades. All units of a run share one transaction;
// each unit runs in its own savepoint.
type Recalculator struct {
	txm       tx.SavepointManager
	stock     *stock.Ledger
	movements *movement.Ledger
	docs      documents.Store
	periods   periods.Validator

	auditor   Auditor
	events    EventPublisher
	observers []Observer
	now       func() time.Time
}

// Option configures a Recalculator.
type Option func(*Recalculator)

// WithAuditor records a cascade audit entry per unit.
func WithAuditor(a Auditor) Option { return func(r *Recalculator) { r.auditor = a } }

// WithEvents publishes a summary event per committed run.
func WithEvents(p EventPublisher) Option { return func(r *Recalculator) { r.events = p } }

// WithObserver adds a transition observer.
func WithObserver(o Observer) Option {
	return func(r *Recalculator) { r.observers = append(r.observers, o) }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option { return func(r *Recalculator) { r.now = now } }

// New creates a recalculator.
func New(txm tx.SavepointManager, stockLedger *stock.Ledger, movements *movement.Ledger,
	docs documents.Store, validator periods.Validator, opts ...Option) *Recalculator {
	r := &Recalculator{
		txm:       txm,
		stock:     stockLedger,
		movements: movements,
		docs:      docs,
		periods:   validator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run tracks the state of one Run call.
type run struct {
	id        id.ID
	observers []Observer
	state     State
	units     map[id.ID]State
	now       func() time.Time
}

func (r *run) enter(ctx context.Context, unitID id.ID, to State, err error) {
	from := r.state
	if !id.IsNil(unitID) {
		from = r.units[unitID]
		if from == "" {
			from = r.state
		}
		r.units[unitID] = to
	} else {
		r.state = to
	}
	t := Transition{RunID: r.id, UnitID: unitID, From: from, To: to, At: r.now(), Err: err}
	for _, o := range r.observers {
		o.Observe(ctx, t)
	}
}

// unitOutcome is what one unit's cascade changed.
type unitOutcome struct {
	movements int
	lots      int
	documents int
	inserted  []*entity.Movement
}

// Run validates the request, then cascades every unit inside one
// transaction. A failed unit is rolled back to its savepoint and reported in
// Result.Errors; with a single unit the failure aborts the run instead.
func (r *Recalculator) Run(ctx context.Context, req Request) (*Result, error) {
	started := r.now()
	ctx, span := tracer.Start(ctx, "recalc.run", trace.WithAttributes(
		attribute.String("owner.id", req.OwnerID.String()),
		attribute.Int("recalc.units", len(req.Units)),
	))
	defer span.End()

	rn := &run{
		id:        id.New(),
		observers: r.observers,
		units:     make(map[id.ID]State),
		now:       r.now,
	}
	rn.enter(ctx, id.Nil(), StateValidating, nil)

	units, earliest, err := normalize(req.Units)
	if err == nil {
		err = periods.Check(ctx, r.periods, req.OwnerID, earliest)
	}
	if err != nil {
		span.RecordError(err)
		rn.enter(ctx, id.Nil(), StateRolledBack, err)
		return nil, err
	}

	res := &Result{RunID: rn.id, Errors: []UnitError{}}
	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for i, u := range units {
			var out unitOutcome
			spErr := r.txm.Savepoint(ctx, fmt.Sprintf("unit_%d", i+1), func(ctx context.Context) error {
				var err error
				out, err = r.cascadeUnit(ctx, rn, req, u)
				return err
			})
			if spErr != nil {
				rn.enter(ctx, u.UnitID, StateRolledBack, spErr)
				if len(units) == 1 {
					return withUnit(spErr, u.UnitID)
				}
				res.Errors = append(res.Errors, UnitError{
					UnitID: u.UnitID,
					Err:    apperror.NewCascadeFailure(u.UnitID.String(), spErr),
				})
				logger.Warn(ctx, "stock unit cascade rolled back",
					"run_id", rn.id, "stock_unit_id", u.UnitID, "error", spErr)
				continue
			}

			res.MovementsAffected += out.movements
			res.LotsUpdated += out.lots
			res.DocumentsUpdated += out.documents
			res.UnitsUpdated++
			res.Inserted = append(res.Inserted, out.inserted...)
		}

		rn.enter(ctx, id.Nil(), StateCommitting, nil)
		if r.events != nil {
			if err := r.events.CascadeCompleted(ctx, r.event(rn, req, units, earliest, res)); err != nil {
				return fmt.Errorf("publish cascade event: %w", err)
			}
		}
		return nil
	})
	res.Elapsed = r.now().Sub(started)

	if err != nil {
		span.RecordError(err)
		rn.enter(ctx, id.Nil(), StateRolledBack, err)
		return nil, err
	}

	rn.enter(ctx, id.Nil(), StateCommitted, nil)
	span.SetAttributes(
		attribute.Int("recalc.movements_affected", res.MovementsAffected),
		attribute.Int("recalc.units_failed", len(res.Errors)),
	)
	logger.Info(ctx, "recalculation committed",
		"run_id", rn.id,
		"reason", req.Reason,
		"movements_affected", res.MovementsAffected,
		"lots_updated", res.LotsUpdated,
		"units_updated", res.UnitsUpdated,
		"units_failed", len(res.Errors),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// cascadeUnit runs steps ReplayingLots through UpdatingDocuments for one
// unit. It is called inside the unit's savepoint.
func (r *Recalculator) cascadeUnit(ctx context.Context, rn *run, req Request, u UnitRequest) (unitOutcome, error) {
	var out unitOutcome

	unit, err := r.stock.LockUnit(ctx, u.UnitID)
	if err != nil {
		return out, err
	}

	for _, d := range u.Pending {
		d.StockUnitID = unit.ID
		m, err := r.movements.Insert(ctx, d)
		if err != nil {
			return out, err
		}
		out.inserted = append(out.inserted, m)
	}

	rn.enter(ctx, unit.ID, StateReplayingLots, nil)
	replay, err := r.stock.ResetAndReplay(ctx, unit, u.FromDate)
	if err != nil {
		return out, err
	}
	baseline, err := r.movements.LastBefore(ctx, unit.ID, u.FromDate)
	if err != nil {
		return out, fmt.Errorf("load baseline: %w", err)
	}
	if baseline != nil {
		replay.Seed(baseline.BalanceUnitCost)
	}

	rn.enter(ctx, unit.ID, StateRecomputingMovements, nil)
	window, err := r.movements.FindAfter(ctx, unit.ID, u.FromDate)
	if err != nil {
		return out, fmt.Errorf("load movements: %w", err)
	}

	recalculatedAt := r.now().UTC()
	var changes []CostChange
	for _, m := range window {
		before := snapshotOf(m)
		if err := apply(replay, m); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("movement_id", m.ID).
					WithDetail("effective_date", m.EffectiveDate.Format(time.DateOnly))
			}
			return out, err
		}
		m.RecalculatedAt = &recalculatedAt
		if after := snapshotOf(m); !before.equal(after) {
			changes = append(changes, CostChange{MovementID: m.ID, Before: before, After: after})
		}
	}

	if err := r.movements.UpdateCosts(ctx, window); err != nil {
		return out, err
	}
	if err := r.stock.SaveReplay(ctx, replay); err != nil {
		return out, err
	}
	if r.auditor != nil && len(changes) > 0 {
		if err := r.auditor.RecordCascade(ctx, CascadeAudit{
			RunID:    rn.id,
			OwnerID:  req.OwnerID,
			UnitID:   unit.ID,
			Reason:   req.Reason,
			FromDate: u.FromDate,
			Changes:  changes,
		}); err != nil {
			return out, fmt.Errorf("audit cascade: %w", err)
		}
	}

	rn.enter(ctx, unit.ID, StateUpdatingDocuments, nil)
	byDocument, order := groupByDocument(window)
	for _, docID := range order {
		if err := r.docs.RecomputeTotals(ctx, docID, byDocument[docID]); err != nil {
			return out, fmt.Errorf("recompute document %s: %w", docID, err)
		}
	}

	final := make(map[id.ID]*entity.Movement, len(window))
	for _, m := range window {
		final[m.ID] = m
	}
	for i, m := range out.inserted {
		if f, ok := final[m.ID]; ok {
			out.inserted[i] = f
		}
	}

	out.movements = len(window)
	out.lots = replay.LotsUpdated()
	out.documents = len(order)
	return out, nil
}

// apply prices m against the replay exactly as Record would have.
func apply(replay *stock.Replay, m *entity.Movement) error {
	if m.Kind.Consumes() {
		c, err := replay.Issue(m.Quantity)
		if err != nil {
			return err
		}
		m.UnitCost = c.UnitCost
		m.TotalCost = c.TotalCost
		m.ConsumedLots = c.Lots
	} else {
		lot, err := replay.Enter(m.ID)
		if err != nil {
			return err
		}
		m.UnitCost = lot.UnitCost
		m.TotalCost = types.RoundMoney(m.Quantity.Mul(lot.UnitCost))
		m.ConsumedLots = nil
	}
	unit := replay.Unit()
	m.BalanceQuantity = unit.CurrentQuantity
	m.BalanceUnitCost = unit.CurrentAverageCost
	return nil
}

func groupByDocument(window []*entity.Movement) (map[id.ID][]documents.LineCost, []id.ID) {
	byDocument := make(map[id.ID][]documents.LineCost)
	var order []id.ID
	for _, m := range window {
		if m.DocumentID == nil {
			continue
		}
		docID := *m.DocumentID
		if _, seen := byDocument[docID]; !seen {
			order = append(order, docID)
		}
		byDocument[docID] = append(byDocument[docID], documents.LineCost{MovementID: m.ID, Cost: m.TotalCost})
	}
	return byDocument, order
}

// normalize merges requests for the same unit, pulls each FromDate back to
// its earliest pending movement and orders units by id so concurrent runs
// lock them in the same order.
func normalize(in []UnitRequest) ([]UnitRequest, time.Time, error) {
	if len(in) == 0 {
		return nil, time.Time{}, apperror.NewValidation("recalculation requires at least one stock unit")
	}

	merged := make(map[id.ID]*UnitRequest, len(in))
	for _, u := range in {
		if id.IsNil(u.UnitID) {
			return nil, time.Time{}, apperror.NewValidation("stock unit id is required")
		}
		from := u.FromDate
		for _, d := range u.Pending {
			if from.IsZero() || d.EffectiveDate.Before(from) {
				from = d.EffectiveDate
			}
		}
		if from.IsZero() {
			return nil, time.Time{}, apperror.NewValidation("recalculation requires a from date").
				WithDetail("stock_unit_id", u.UnitID)
		}
		from = types.Day(from)

		if m, ok := merged[u.UnitID]; ok {
			if from.Before(m.FromDate) {
				m.FromDate = from
			}
			m.Pending = append(m.Pending, u.Pending...)
			continue
		}
		merged[u.UnitID] = &UnitRequest{
			UnitID:   u.UnitID,
			FromDate: from,
			Pending:  append([]movement.Draft(nil), u.Pending...),
		}
	}

	out := make([]UnitRequest, 0, len(merged))
	var earliest time.Time
	for _, u := range merged {
		out = append(out, *u)
		if earliest.IsZero() || u.FromDate.Before(earliest) {
			earliest = u.FromDate
		}
	}
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].UnitID, out[j].UnitID) < 0 })
	return out, earliest, nil
}

// withUnit makes sure a fatal unit error names its unit.
func withUnit(err error, unitID id.ID) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		if _, set := appErr.Details["stock_unit_id"]; !set {
			appErr.WithDetail("stock_unit_id", unitID.String())
		}
		return err
	}
	return fmt.Errorf("cascade stock unit %s: %w", unitID, err)
}

func (r *Recalculator) event(rn *run, req Request, units []UnitRequest, earliest time.Time, res *Result) CascadeEvent {
	ev := CascadeEvent{
		RunID:             rn.id,
		OwnerID:           req.OwnerID,
		Reason:            req.Reason,
		FromDate:          earliest,
		MovementsAffected: res.MovementsAffected,
		LotsUpdated:       res.LotsUpdated,
		UnitsUpdated:      res.UnitsUpdated,
	}
	failed := make(map[id.ID]bool, len(res.Errors))
	for _, e := range res.Errors {
		failed[e.UnitID] = true
		ev.FailedUnits = append(ev.FailedUnits, e.UnitID)
	}
	for _, u := range units {
		if !failed[u.UnitID] {
			ev.Units = append(ev.Units, u.UnitID)
		}
	}
	return ev
}
