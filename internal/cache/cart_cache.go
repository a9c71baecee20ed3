package cache

import (
	"context"
	"errors"

	"github.com/fjod/shop_client/internal/domain"
)

var ErrLineNotFound = errors.New("cart line not found")

// CartCache is the durable, offline-available mirror of the user's cart.
// Consumers define this interface, not the sqlite implementation. Every
// operation completes before returning; an Upsert is visible to the next
// ByUser call.
type CartCache interface {
	// Upsert inserts or fully overwrites the row keyed by line.ID.
	Upsert(ctx context.Context, line domain.CartLine, product domain.Product) error

	// ByUser returns the user's entries ordered by AddedAt descending.
	ByUser(ctx context.Context, userID string) ([]domain.CartEntry, error)

	// ByUserAndProduct finds the single line occupying the
	// (userID, productID, variantID) slot, or ErrLineNotFound. A nil
	// variantID matches only lines without a variant.
	ByUserAndProduct(ctx context.Context, userID, productID string, variantID *string) (*domain.CartLine, error)

	// UpdateQuantity returns the number of rows touched: 0 means the line
	// no longer exists locally, 1 means it was updated.
	UpdateQuantity(ctx context.Context, lineID string, quantity int) (int64, error)

	// ReplaceAll swaps the user's entire row set for the given entries
	// atomically: afterwards the mirror holds either the previous set or
	// exactly the new one, never a mix.
	ReplaceAll(ctx context.Context, userID string, entries []domain.CartEntry) error

	Delete(ctx context.Context, lineID string) error
	Clear(ctx context.Context, userID string) error
	Count(ctx context.Context, userID string) (int, error)

	Close() error
}
