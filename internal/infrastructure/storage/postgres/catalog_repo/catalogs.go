// Package catalog_repo answers catalog lookups the stock ledger needs and
// registers the minimal catalog rows (id, code, name) the engine references.
// Rows marked deleted count as absent.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"kardex/internal/core/id"
	"kardex/internal/domain/catalogs"
	"kardex/internal/infrastructure/storage/postgres"
)

const (
	nomenclatureTable = "cat_nomenclature"
	warehousesTable   = "cat_warehouses"
)

// CatalogRepo checks existence of live rows in one catalog table.
type CatalogRepo struct {
	txm       *postgres.TxManager
	tableName string
	builder   squirrel.StatementBuilderType
}

// NewCatalogRepo creates a repository over tableName.
func NewCatalogRepo(txm *postgres.TxManager, tableName string) *CatalogRepo {
	return &CatalogRepo{
		txm:       txm,
		tableName: tableName,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// NewProductCatalog creates the product catalog over cat_nomenclature.
func NewProductCatalog(txm *postgres.TxManager) *CatalogRepo {
	return NewCatalogRepo(txm, nomenclatureTable)
}

// NewWarehouseCatalog creates the warehouse catalog over cat_warehouses.
func NewWarehouseCatalog(txm *postgres.TxManager) *CatalogRepo {
	return NewCatalogRepo(txm, warehousesTable)
}

// existsQuery builds SELECT EXISTS(...) for a live row with entityID.
func (r *CatalogRepo) existsQuery(entityID id.ID) (string, []any, error) {
	inner := r.builder.Select("1").
		From(r.tableName).
		Where(squirrel.Eq{"id": entityID, "deleted_at": nil})
	return r.builder.Select().
		Column(squirrel.Expr("EXISTS (?)", inner)).
		ToSql()
}

// Exists implements catalogs.ProductCatalog and catalogs.WarehouseCatalog.
func (r *CatalogRepo) Exists(ctx context.Context, entityID id.ID) (bool, error) {
	sql, args, err := r.existsQuery(entityID)
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", r.tableName, err)
	}
	return exists, nil
}

// upsertQuery inserts the row or renames it and clears its deletion mark.
func (r *CatalogRepo) upsertQuery(entityID id.ID, code, name string) (string, []any, error) {
	return r.builder.Insert(r.tableName).
		SetMap(map[string]any{"id": entityID, "code": code, "name": name}).
		Suffix("ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, deleted_at = NULL").
		ToSql()
}

// Upsert registers a catalog row.
func (r *CatalogRepo) Upsert(ctx context.Context, entityID id.ID, code, name string) error {
	sql, args, err := r.upsertQuery(entityID, code, name)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", r.tableName, err)
	}
	return nil
}

var (
	_ catalogs.ProductCatalog   = (*CatalogRepo)(nil)
	_ catalogs.WarehouseCatalog = (*CatalogRepo)(nil)
)
