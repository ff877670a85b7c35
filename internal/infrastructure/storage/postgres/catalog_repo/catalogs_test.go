package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/id"
)

func TestCatalogRepo_ExistsSQL(t *testing.T) {
	tests := []struct {
		name    string
		repo    *CatalogRepo
		wantSQL string
	}{
		{
			name:    "products",
			repo:    NewProductCatalog(nil),
			wantSQL: "SELECT EXISTS (SELECT 1 FROM cat_nomenclature WHERE deleted_at IS NULL AND id = $1)",
		},
		{
			name:    "warehouses",
			repo:    NewWarehouseCatalog(nil),
			wantSQL: "SELECT EXISTS (SELECT 1 FROM cat_warehouses WHERE deleted_at IS NULL AND id = $1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entityID := id.New()

			sql, args, err := tt.repo.existsQuery(entityID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSQL, sql)
			// squirrel.Eq passes ids through driver.Valuer
			assert.Equal(t, []any{entityID.String()}, args)
		})
	}
}

func TestCatalogRepo_UpsertSQL(t *testing.T) {
	entityID := id.New()

	sql, args, err := NewWarehouseCatalog(nil).upsertQuery(entityID, "WH-1", "Main warehouse")
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO cat_warehouses (code,id,name) VALUES ($1,$2,$3) "+
		"ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, deleted_at = NULL", sql)
	assert.Equal(t, []any{"WH-1", entityID, "Main warehouse"}, args)
}
