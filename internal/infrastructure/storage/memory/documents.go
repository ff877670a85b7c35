package memory

import (
	"context"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
	"kardex/internal/domain/documents"
)

// DocumentStore is the documents.Store view of a Store.
type DocumentStore struct{ s *Store }

// Documents returns the document store view.
func (s *Store) Documents() *DocumentStore { return &DocumentStore{s: s} }

// Seed stores a document with its current lines and totals, as an external
// system would have written them.
func (d *DocumentStore) Seed(t documents.Totals, lines []documents.LineCost) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.docs[t.ID] = t
	d.s.lines[t.ID] = append([]documents.LineCost(nil), lines...)
}

// Lines returns the stored line costs of a document.
func (d *DocumentStore) Lines(documentID id.ID) []documents.LineCost {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return append([]documents.LineCost(nil), d.s.lines[documentID]...)
}

// Ensure implements documents.Store.
func (d *DocumentStore) Ensure(ctx context.Context, h documents.Header) error {
	if err := h.Validate(); err != nil {
		return err
	}
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.docs[h.ID]; ok {
		return nil
	}
	put(ctx, &d.s.mu, d.s.docs, h.ID, documents.Totals{
		ID:            h.ID,
		OwnerID:       h.OwnerID,
		OperationType: h.OperationType,
		Number:        h.Number,
		Date:          h.Date,
		TaxRatio:      h.EffectiveTaxRatio(),
		UpdatedAt:     time.Now().UTC(),
	})
	return nil
}

// RecomputeTotals implements documents.Store.
func (d *DocumentStore) RecomputeTotals(ctx context.Context, documentID id.ID, lines []documents.LineCost) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	doc, ok := d.s.docs[documentID]
	if !ok {
		return apperror.NewNotFound("document", documentID)
	}

	merged := documents.MergeLines(d.s.lines[documentID], lines)
	put(ctx, &d.s.mu, d.s.lines, documentID, merged)

	subtotal := documents.Subtotal(merged)
	if subtotal.Equal(doc.Subtotal) {
		return nil
	}
	doc.Subtotal = subtotal
	doc.Total = documents.Total(subtotal, doc.TaxRatio)
	doc.UpdatedAt = time.Now().UTC()
	put(ctx, &d.s.mu, d.s.docs, documentID, doc)
	return nil
}

// Get implements documents.Store.
func (d *DocumentStore) Get(_ context.Context, documentID id.ID) (*documents.Totals, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	doc, ok := d.s.docs[documentID]
	if !ok {
		return nil, apperror.NewNotFound("document", documentID)
	}
	return &doc, nil
}
