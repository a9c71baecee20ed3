package domain

import (
	"errors"
	"fmt"
	"time"
)

// Quantity bounds for a single cart line.
const (
	MinQuantity = 1
	MaxQuantity = 999
)

var ErrQuantityOutOfRange = fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)

// CartLine is one item in a user's cart. At most one line exists per
// (UserID, ProductID, VariantID); a nil VariantID is a distinct key value,
// so a simple product and a variant of the same product are different lines.
type CartLine struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	VariantID *string   `json:"variantId,omitempty"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CartEntry pairs a cart line with the denormalized product snapshot the
// local cache stores alongside it, so the cart renders offline.
type CartEntry struct {
	Line    CartLine `json:"line"`
	Product Product  `json:"product"`
}

// ValidateQuantity rejects quantities outside [MinQuantity, MaxQuantity]
// before they reach storage or the network.
func ValidateQuantity(quantity int) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return fmt.Errorf("%w, got %d", ErrQuantityOutOfRange, quantity)
	}
	return nil
}

// SameKey reports whether the line occupies the same uniqueness slot as the
// given (productID, variantID) pair.
func (l CartLine) SameKey(productID string, variantID *string) bool {
	if l.ProductID != productID {
		return false
	}
	if l.VariantID == nil || variantID == nil {
		return l.VariantID == nil && variantID == nil
	}
	return *l.VariantID == *variantID
}

var errUnknownUser = errors.New("cart line has no user id")

// Validate checks the invariants a line must satisfy before it is persisted.
func (l CartLine) Validate() error {
	if l.UserID == "" {
		return errUnknownUser
	}
	return ValidateQuantity(l.Quantity)
}
