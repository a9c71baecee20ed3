package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(1))
	assert.NoError(t, ValidateQuantity(999))
	assert.ErrorIs(t, ValidateQuantity(0), ErrQuantityOutOfRange)
	assert.ErrorIs(t, ValidateQuantity(-1), ErrQuantityOutOfRange)
	assert.ErrorIs(t, ValidateQuantity(1000), ErrQuantityOutOfRange)
}

func TestSameKey_NilVariantIsItsOwnSlot(t *testing.T) {
	red := "red"
	blue := "blue"

	simple := CartLine{ProductID: "p1"}
	variant := CartLine{ProductID: "p1", VariantID: &red}

	assert.True(t, simple.SameKey("p1", nil))
	assert.False(t, simple.SameKey("p1", &red))
	assert.False(t, variant.SameKey("p1", nil))
	assert.True(t, variant.SameKey("p1", &red))
	assert.False(t, variant.SameKey("p1", &blue))
	assert.False(t, variant.SameKey("p2", &red))
}
