package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

func TestMergeLines(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()
	existing := []LineCost{
		{MovementID: a, Cost: types.MustDecimal("10")},
		{MovementID: b, Cost: types.MustDecimal("20")},
	}

	merged := MergeLines(existing, []LineCost{
		{MovementID: b, Cost: types.MustDecimal("25")},
		{MovementID: c, Cost: types.MustDecimal("5")},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, a, merged[0].MovementID)
	assert.True(t, merged[1].Cost.Equal(types.MustDecimal("25")))
	assert.Equal(t, c, merged[2].MovementID)
	assert.Equal(t, "40.00", Subtotal(merged).StringFixed(2))
	// input untouched
	assert.True(t, existing[1].Cost.Equal(types.MustDecimal("20")))
}

func TestTotal(t *testing.T) {
	assert.Equal(t, "94.40", Total(types.MustDecimal("80"), types.MustDecimal("1.18")).StringFixed(2))
	assert.Equal(t, "80.00", Total(types.MustDecimal("80"), types.Zero()).StringFixed(2))
	assert.Equal(t, "2.53", Total(types.MustDecimal("2.5"), types.MustDecimal("1.01")).StringFixed(2))
}

func TestHeader(t *testing.T) {
	h := Header{ID: id.New(), OwnerID: id.New()}
	require.NoError(t, h.Validate())
	assert.Equal(t, "1", h.EffectiveTaxRatio().String())

	h.TaxRatio = types.MustDecimal("-1")
	assert.Error(t, h.Validate())

	assert.Error(t, Header{}.Validate())
}
