// Package catalogs declares the catalog lookups the engine consumes.
// Product and warehouse CRUD belongs to another service; the engine only asks
// whether a reference exists before it opens a new stock unit.
package catalogs

import (
	"context"

	"kardex/internal/core/id"
)

// ProductCatalog answers existence of products (nomenclature items).
type ProductCatalog interface {
	Exists(ctx context.Context, productID id.ID) (bool, error)
}

// WarehouseCatalog answers existence of warehouses.
type WarehouseCatalog interface {
	Exists(ctx context.Context, warehouseID id.ID) (bool, error)
}
