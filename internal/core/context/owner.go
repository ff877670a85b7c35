package context

import (
	"context"

	"kardex/internal/core/id"
)

type ownerKey struct{}

// WithOwner stores the owner (company/book) the current operation acts for.
func WithOwner(ctx context.Context, ownerID id.ID) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// GetOwner returns the owner from context or id.Nil().
func GetOwner(ctx context.Context) id.ID {
	if v, ok := ctx.Value(ownerKey{}).(id.ID); ok {
		return v
	}
	return id.Nil()
}
