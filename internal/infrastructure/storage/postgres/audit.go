// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"kardex/internal/core/id"
	"kardex/internal/domain/recalc"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the size above which changes are compressed.
const DefaultCompressThreshold = 10 * 1024

// CascadeAuditEntry is one row of sys_cascade_audit.
type CascadeAuditEntry struct {
	ID                id.ID           `db:"id" json:"id"`
	RunID             id.ID           `db:"run_id" json:"runId"`
	OwnerID           id.ID           `db:"owner_id" json:"ownerId"`
	StockUnitID       id.ID           `db:"stock_unit_id" json:"stockUnitId"`
	Reason            string          `db:"reason" json:"reason"`
	FromDate          time.Time       `db:"from_date" json:"fromDate"`
	MovementsChanged  int             `db:"movements_changed" json:"movementsChanged"`
	Changes           json.RawMessage `db:"changes" json:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// AuditService stores cascade audit records.
// Change sets larger than the threshold go to changes_compressed as zstd.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager, compressThreshold int) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if compressThreshold <= 0 {
		compressThreshold = DefaultCompressThreshold
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: compressThreshold,
	}, nil
}

// RecordCascade implements recalc.Auditor.
func (s *AuditService) RecordCascade(ctx context.Context, audit recalc.CascadeAudit) error {
	entry, err := s.newEntry(audit)
	if err != nil {
		return err
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_cascade_audit (
			id, run_id, owner_id, stock_unit_id, reason, from_date,
			movements_changed, changes, changes_compressed, compression_algo,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID, entry.RunID, entry.OwnerID, entry.StockUnitID, entry.Reason, entry.FromDate,
		entry.MovementsChanged, nullJSON(entry.Changes), entry.ChangesCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cascade audit: %w", err)
	}
	return nil
}

func (s *AuditService) newEntry(audit recalc.CascadeAudit) (*CascadeAuditEntry, error) {
	changes, err := json.Marshal(audit.Changes)
	if err != nil {
		return nil, fmt.Errorf("marshal changes: %w", err)
	}

	entry := &CascadeAuditEntry{
		ID:               id.New(),
		RunID:            audit.RunID,
		OwnerID:          audit.OwnerID,
		StockUnitID:      audit.UnitID,
		Reason:           audit.Reason,
		FromDate:         audit.FromDate,
		MovementsChanged: len(audit.Changes),
		Changes:          changes,
		CompressionAlgo:  CompressionNone,
		CreatedAt:        time.Now().UTC(),
	}

	if len(changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

// decode restores Changes of a compressed entry in place.
func (s *AuditService) decode(entry *CascadeAuditEntry) error {
	if entry.CompressionAlgo != CompressionZstd || len(entry.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := s.decoder.DecodeAll(entry.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	entry.Changes = decompressed
	entry.ChangesCompressed = nil
	return nil
}

// History returns the latest cascade audit entries of a stock unit,
// newest first, with changes decompressed.
func (s *AuditService) History(ctx context.Context, unitID id.ID, limit int) ([]CascadeAuditEntry, error) {
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, run_id, owner_id, stock_unit_id, reason, from_date,
		       movements_changed, changes, changes_compressed, compression_algo,
		       created_at
		FROM sys_cascade_audit
		WHERE stock_unit_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, unitID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cascade history: %w", err)
	}
	defer rows.Close()

	var entries []CascadeAuditEntry
	for rows.Next() {
		var e CascadeAuditEntry
		err := rows.Scan(
			&e.ID, &e.RunID, &e.OwnerID, &e.StockUnitID, &e.Reason, &e.FromDate,
			&e.MovementsChanged, &e.Changes, &e.ChangesCompressed, &e.CompressionAlgo,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cascade audit: %w", err)
		}
		if err := s.decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return raw
}

var _ recalc.Auditor = (*AuditService)(nil)
