package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCartCanonicalShape(t *testing.T) {
	raw := []byte(`{
		"items": [{"product_id": "P1", "quantity": 2, "unit_price": 4.5}],
		"total_items": 2,
		"total_price": 9.0,
		"discount_amount": 1.0
	}`)

	cart, err := NormalizeCart(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, cart.TotalItems)
	assert.Equal(t, 9.0, cart.TotalPrice)
	assert.Equal(t, 1.0, cart.DiscountAmount)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "P1", cart.Items[0].ProductID)
}

func TestNormalizeCartLegacyFieldNames(t *testing.T) {
	raw := []byte(`{
		"cart_items": [{"productId": 41, "qty": 3, "price": "2.50"}],
		"items_count": 3,
		"cart_total": "7.50"
	}`)

	cart, err := NormalizeCart(raw)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "41", cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 2.5, cart.Items[0].UnitPrice)
	assert.Equal(t, 3, cart.TotalItems)
	assert.Equal(t, 7.5, cart.TotalPrice)
}

func TestNormalizeCartDerivesMissingTotals(t *testing.T) {
	raw := []byte(`{"items": [
		{"product_id": "P1", "quantity": 2, "unit_price": 3.0},
		{"product_id": "P2", "quantity": 1, "unit_price": 4.0}
	]}`)

	cart, err := NormalizeCart(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, cart.TotalItems)
	assert.Equal(t, 10.0, cart.TotalPrice)
}

func TestNormalizeCartEmptyPayload(t *testing.T) {
	cart, err := NormalizeCart([]byte(`{}`))
	require.NoError(t, err)

	assert.True(t, cart.IsEmpty())
	assert.NotNil(t, cart.Items)
}

func TestNormalizeCartRejectsGarbage(t *testing.T) {
	_, err := NormalizeCart([]byte(`"not a cart"`))
	assert.Error(t, err)
}
