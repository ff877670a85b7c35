package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/id"
	"kardex/internal/domain/recalc"
)

func cascadeAudit(changes int) recalc.CascadeAudit {
	audit := recalc.CascadeAudit{
		RunID:    id.New(),
		OwnerID:  id.New(),
		UnitID:   id.New(),
		Reason:   "late receipt",
		FromDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < changes; i++ {
		audit.Changes = append(audit.Changes, recalc.CostChange{
			MovementID: id.New(),
			Before:     recalc.CostSnapshot{UnitCost: decimal.NewFromInt(6), TotalCost: decimal.NewFromInt(60)},
			After:      recalc.CostSnapshot{UnitCost: decimal.NewFromInt(8), TotalCost: decimal.NewFromInt(80)},
		})
	}
	return audit
}

func TestAuditService_SmallChangesStayPlain(t *testing.T) {
	svc, err := NewAuditService(nil, 0)
	require.NoError(t, err)

	entry, err := svc.newEntry(cascadeAudit(2))
	require.NoError(t, err)

	assert.Equal(t, CompressionNone, entry.CompressionAlgo)
	assert.Nil(t, entry.ChangesCompressed)
	assert.Equal(t, 2, entry.MovementsChanged)

	var changes []recalc.CostChange
	require.NoError(t, json.Unmarshal(entry.Changes, &changes))
	assert.Len(t, changes, 2)
}

func TestAuditService_LargeChangesCompressed(t *testing.T) {
	svc, err := NewAuditService(nil, 256)
	require.NoError(t, err)

	audit := cascadeAudit(50)
	entry, err := svc.newEntry(audit)
	require.NoError(t, err)

	assert.Equal(t, CompressionZstd, entry.CompressionAlgo)
	assert.Nil(t, entry.Changes)
	assert.NotEmpty(t, entry.ChangesCompressed)
	assert.Equal(t, audit.UnitID, entry.StockUnitID)

	require.NoError(t, svc.decode(entry))
	assert.Nil(t, entry.ChangesCompressed)

	var changes []recalc.CostChange
	require.NoError(t, json.Unmarshal(entry.Changes, &changes))
	require.Len(t, changes, 50)
	assert.Equal(t, audit.Changes[49].MovementID, changes[49].MovementID)
	assert.True(t, changes[0].After.TotalCost.Equal(decimal.NewFromInt(80)))
}

func TestAuditService_DecodePlainIsNoop(t *testing.T) {
	svc, err := NewAuditService(nil, 0)
	require.NoError(t, err)

	entry := &CascadeAuditEntry{Changes: json.RawMessage(`[]`), CompressionAlgo: CompressionNone}
	require.NoError(t, svc.decode(entry))
	assert.JSONEq(t, `[]`, string(entry.Changes))
}
