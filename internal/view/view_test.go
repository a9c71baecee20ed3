package view

import (
	"errors"
	"testing"

	"github.com/fjod/shop_client/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(lineID, productID, sellerID string, quantity int, price int64) domain.CartEntry {
	return domain.CartEntry{
		Line: domain.CartLine{ID: lineID, UserID: "u1", ProductID: productID, Quantity: quantity},
		Product: domain.Product{
			ID:         productID,
			SellerID:   sellerID,
			SellerName: "Seller " + sellerID,
			Price:      price,
		},
	}
}

func TestProject_SubtotalAndTotal(t *testing.T) {
	entries := []domain.CartEntry{
		entry("l1", "p1", "s1", 2, 100000),
		entry("l2", "p2", "s1", 1, 50000),
	}

	v := Project(entries)

	require.Len(t, v.Groups, 1)
	assert.Equal(t, int64(250000), v.Groups[0].Subtotal)
	assert.Equal(t, int64(250000), v.Total)
	assert.Equal(t, 2, v.ItemCount)
}

func TestProject_GroupsBySellerInFirstSeenOrder(t *testing.T) {
	entries := []domain.CartEntry{
		entry("l1", "p1", "s2", 1, 10000),
		entry("l2", "p2", "s1", 1, 20000),
		entry("l3", "p3", "s2", 3, 5000),
	}

	v := Project(entries)

	require.Len(t, v.Groups, 2)
	assert.Equal(t, "s2", v.Groups[0].SellerID)
	assert.Equal(t, int64(25000), v.Groups[0].Subtotal)
	assert.Len(t, v.Groups[0].Items, 2)
	assert.Equal(t, "s1", v.Groups[1].SellerID)
	assert.Equal(t, int64(20000), v.Groups[1].Subtotal)
	assert.Equal(t, int64(45000), v.Total)
}

func TestProject_RecomputeHasNoDrift(t *testing.T) {
	entries := []domain.CartEntry{
		entry("l1", "p1", "s1", 2, 100000),
		entry("l2", "p2", "s1", 1, 50000),
	}

	// Mutate only a quantity and recompute; the result must equal summing
	// from scratch, never an incremental patch of the old view.
	entries[0].Line.Quantity = 5
	v := Project(entries)

	assert.Equal(t, int64(5*100000+50000), v.Total)
	assert.Equal(t, v.Total, v.Groups[0].Subtotal)
}

func TestProject_EmptyCart(t *testing.T) {
	v := Project(nil)
	assert.Zero(t, v.Total)
	assert.Zero(t, v.ItemCount)
	assert.Empty(t, v.Groups)
}

func TestProject_IsPure(t *testing.T) {
	entries := []domain.CartEntry{
		entry("l1", "p1", "s1", 2, 100000),
	}
	assert.Equal(t, Project(entries), Project(entries))
}

func TestMachine_Transitions(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, PhaseLoading, m.State().Phase)

	entries := []domain.CartEntry{entry("l1", "p1", "s1", 1, 100000)}
	st := m.Data(entries)
	assert.Equal(t, PhaseData, st.Phase)
	assert.Equal(t, int64(100000), st.View.Total)
}

func TestMachine_ErrorPreservesLastData(t *testing.T) {
	m := NewMachine()
	entries := []domain.CartEntry{entry("l1", "p1", "s1", 1, 100000)}
	m.Data(entries)

	cause := errors.New("quantity update not confirmed by server")
	st := m.Fail(cause)

	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, cause, st.Err)
	assert.Equal(t, int64(100000), st.View.Total, "rollback flows still render the last good view")

	st = m.Loading()
	assert.Equal(t, PhaseLoading, st.Phase)
	assert.NoError(t, st.Err)
	assert.Equal(t, int64(100000), st.View.Total)
}
