// Package document_repo provides the PostgreSQL document store.
// Only totals and line costs are kept; the rest of a voucher lives with
// its owner.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
	"kardex/internal/domain/documents"
	"kardex/internal/infrastructure/storage/postgres"
)

const (
	documentsTable = "documents"
	linesTable     = "document_lines"
)

var totalsColumns = postgres.ExtractDBColumns[documents.Totals]()

// DocumentRepo implements documents.Store.
type DocumentRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewDocumentRepo creates a new document repository.
func NewDocumentRepo(txm *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Ensure implements documents.Store.
func (r *DocumentRepo) Ensure(ctx context.Context, header documents.Header) error {
	if err := header.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	sql, args, err := r.builder.Insert(documentsTable).
		SetMap(map[string]any{
			"id":             header.ID,
			"owner_id":       header.OwnerID,
			"operation_type": header.OperationType,
			"number":         header.Number,
			"document_date":  header.Date,
			"tax_ratio":      header.EffectiveTaxRatio(),
			"created_at":     now,
			"updated_at":     now,
		}).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// RecomputeTotals implements documents.Store.
func (r *DocumentRepo) RecomputeTotals(ctx context.Context, documentID id.ID, lines []documents.LineCost) error {
	doc, err := r.getTotals(ctx, documentID, true)
	if err != nil {
		return err
	}

	if len(lines) > 0 {
		q := r.builder.Insert(linesTable).Columns("document_id", "movement_id", "line_cost")
		for _, l := range lines {
			q = q.Values(documentID, l.MovementID, l.Cost)
		}
		sql, args, err := q.
			Suffix("ON CONFLICT (document_id, movement_id) DO UPDATE SET line_cost = EXCLUDED.line_cost").
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert document lines: %w", err)
		}
	}

	var stored []documents.LineCost
	err = pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &stored,
		`SELECT movement_id, line_cost FROM document_lines WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("load document lines: %w", err)
	}

	subtotal := documents.Subtotal(stored)
	if subtotal.Equal(doc.Subtotal) {
		return nil
	}

	sql, args, err := r.builder.Update(documentsTable).
		Set("subtotal", subtotal).
		Set("total", documents.Total(subtotal, doc.TaxRatio)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update document totals: %w", err)
	}
	return nil
}

// Get implements documents.Store.
func (r *DocumentRepo) Get(ctx context.Context, documentID id.ID) (*documents.Totals, error) {
	return r.getTotals(ctx, documentID, false)
}

func (r *DocumentRepo) getTotals(ctx context.Context, documentID id.ID, lock bool) (*documents.Totals, error) {
	q := r.builder.Select(totalsColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"id": documentID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var doc documents.Totals
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", documentID)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

var _ documents.Store = (*DocumentRepo)(nil)
