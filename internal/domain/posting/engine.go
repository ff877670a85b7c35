package posting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/numerator"
	"kardex/internal/core/tx"
	"kardex/internal/domain/documents"
	"kardex/internal/domain/periods"
	"kardex/internal/domain/recalc"
	"kardex/internal/domain/registers/movement"
	"kardex/internal/domain/registers/stock"
	"kardex/pkg/logger"
)

// Engine registers documents atomically: number, document, movements and
// any cascade commit or roll back together.
type Engine struct {
	txm       tx.Manager
	periods   periods.Validator
	sequencer numerator.Sequencer
	stock     *stock.Ledger
	movements *movement.Ledger
	docs      documents.Store
	recalc    *recalc.Recalculator

	numbering map[string]numerator.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithNumbering sets how numbers of operationType are displayed.
func WithNumbering(operationType string, cfg numerator.Config) Option {
	return func(e *Engine) { e.numbering[operationType] = cfg }
}

// NewEngine creates a posting engine.
func NewEngine(
	txm tx.Manager,
	validator periods.Validator,
	sequencer numerator.Sequencer,
	stockLedger *stock.Ledger,
	movements *movement.Ledger,
	docs documents.Store,
	recalculator *recalc.Recalculator,
	opts ...Option,
) *Engine {
	e := &Engine{
		txm:       txm,
		periods:   validator,
		sequencer: sequencer,
		stock:     stockLedger,
		movements: movements,
		docs:      docs,
		recalc:    recalculator,
		numbering: make(map[string]numerator.Config),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) config(operationType string) numerator.Config {
	if cfg, ok := e.numbering[operationType]; ok {
		return cfg
	}
	return numerator.DefaultConfig(operationType)
}

// unitLines are the drafts of one stock unit, in line order.
type unitLines struct {
	unitID id.ID
	drafts []movement.Draft
}

// lineRef points a document line at its draft.
type lineRef struct {
	unit  *unitLines
	draft int
}

// movementID is set once the unit is locked.
func (r lineRef) movementID() id.ID {
	return r.unit.drafts[r.draft].ID
}

// Register validates the period, numbers the document and records its
// lines. Units with movements dated after the document are cascaded; a
// failed cascade of any unit fails the whole registration.
func (e *Engine) Register(ctx context.Context, cmd Command) (*Result, error) {
	if err := cmd.Validate(ctx); err != nil {
		return nil, err
	}
	if err := periods.Check(ctx, e.periods, cmd.OwnerID, cmd.Date); err != nil {
		return nil, err
	}
	if id.IsNil(cmd.DocumentID) {
		cmd.DocumentID = id.New()
	}

	res := &Result{DocumentID: cmd.DocumentID}
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := e.sequencer.Next(ctx, cmd.OwnerID, cmd.OperationType)
		if err != nil {
			return fmt.Errorf("next sequence number: %w", err)
		}
		res.Number = numerator.Format(e.config(cmd.OperationType), cmd.Date, n)

		if err := e.docs.Ensure(ctx, documents.Header{
			ID:            cmd.DocumentID,
			OwnerID:       cmd.OwnerID,
			OperationType: cmd.OperationType,
			Number:        res.Number,
			Date:          cmd.Date,
			TaxRatio:      cmd.TaxRatio,
		}); err != nil {
			return fmt.Errorf("ensure document: %w", err)
		}

		units, refs, err := e.group(ctx, cmd)
		if err != nil {
			return err
		}

		recorded := make(map[id.ID]*entity.Movement, len(cmd.Lines))
		var direct []documents.LineCost
		var cascade []recalc.UnitRequest
		for _, u := range units {
			// lock before the retroactivity check so no later movement can
			// slip in between
			if _, err := e.stock.LockUnit(ctx, u.unitID); err != nil {
				return err
			}
			// ids break ties in replay order, so they are taken under the
			// lock: a registration that records later sorts later
			for i := range u.drafts {
				u.drafts[i].ID = id.New()
			}
			retro, err := e.movements.IsRetroactive(ctx, u.unitID, cmd.Date)
			if err != nil {
				return fmt.Errorf("check retroactivity: %w", err)
			}
			if retro {
				cascade = append(cascade, recalc.UnitRequest{UnitID: u.unitID, FromDate: cmd.Date, Pending: u.drafts})
				continue
			}
			for _, d := range u.drafts {
				m, err := e.movements.Record(ctx, d)
				if err != nil {
					return err
				}
				recorded[m.ID] = m
				direct = append(direct, documents.LineCost{MovementID: m.ID, Cost: m.TotalCost})
			}
		}

		if len(direct) > 0 {
			if err := e.docs.RecomputeTotals(ctx, cmd.DocumentID, direct); err != nil {
				return fmt.Errorf("recompute document totals: %w", err)
			}
		}

		if len(cascade) > 0 {
			out, err := e.recalc.Run(ctx, recalc.Request{
				OwnerID: cmd.OwnerID,
				Reason:  reason(cmd),
				Units:   cascade,
			})
			if err != nil {
				return err
			}
			if len(out.Errors) > 0 {
				return out.Errors[0].Err
			}
			for _, m := range out.Inserted {
				recorded[m.ID] = m
			}
			res.Cascade = out
		}

		res.Movements = make([]*entity.Movement, 0, len(refs))
		for _, ref := range refs {
			res.Movements = append(res.Movements, recorded[ref.movementID()])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document registered",
		"document_id", res.DocumentID,
		"number", res.Number,
		"lines", len(cmd.Lines),
		"retroactive", res.Cascade != nil,
	)
	return res, nil
}

// group opens the stock units of the lines and returns their drafts by unit,
// units in id order, and a reference per line. Drafts have no ids yet.
func (e *Engine) group(ctx context.Context, cmd Command) ([]*unitLines, []lineRef, error) {
	byUnit := make(map[id.ID]*unitLines)
	refs := make([]lineRef, 0, len(cmd.Lines))
	docID := cmd.DocumentID

	for i, line := range cmd.Lines {
		unit, err := e.stock.EnsureUnit(ctx, line.ProductID, line.WarehouseID, line.CostingMethod)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				appErr.WithDetail("lineNo", i+1)
			}
			return nil, nil, err
		}
		d := movement.Draft{
			StockUnitID:    unit.ID,
			Kind:           line.Kind,
			EffectiveDate:  cmd.Date,
			DocumentID:     &docID,
			Quantity:       line.Quantity,
			ExpirationDate: line.ExpirationDate,
		}
		if line.Kind == entity.MovementEntry {
			d.UnitCost = line.UnitCost
		}
		u, ok := byUnit[unit.ID]
		if !ok {
			u = &unitLines{unitID: unit.ID}
			byUnit[unit.ID] = u
		}
		refs = append(refs, lineRef{unit: u, draft: len(u.drafts)})
		u.drafts = append(u.drafts, d)
	}

	units := make([]*unitLines, 0, len(byUnit))
	for _, u := range byUnit {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return id.Compare(units[i].unitID, units[j].unitID) < 0 })
	return units, refs, nil
}

func reason(cmd Command) string {
	if cmd.Reason != "" {
		return cmd.Reason
	}
	return fmt.Sprintf("%s %s dated %s", cmd.OperationType, cmd.DocumentID, cmd.Date.Format(time.DateOnly))
}
