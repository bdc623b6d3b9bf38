package api

import (
	"encoding/json"
	"fmt"
	"strconv"

	"storefront-gateway/internal/models"
)

// Upstream cart payloads are not uniform: older endpoints use
// cart_items/items_count, newer ones items/total_items. The shape is
// normalized here, once, and nowhere else.

var (
	itemListKeys   = []string{"items", "cart_items", "cartItems"}
	productIDKeys  = []string{"product_id", "productId", "id"}
	quantityKeys   = []string{"quantity", "qty", "count"}
	unitPriceKeys  = []string{"unit_price", "unitPrice", "price"}
	totalItemKeys  = []string{"total_items", "items_count", "totalItems"}
	totalPriceKeys = []string{"total_price", "cart_total", "totalPrice"}
	discountKeys   = []string{"discount_amount", "discount"}
)

// NormalizeCart converts a raw upstream cart payload into the
// canonical Cart shape.
func NormalizeCart(raw []byte) (*models.Cart, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unexpected cart payload: %w", err)
	}

	cart := &models.Cart{Items: []models.CartItem{}}

	for _, key := range itemListKeys {
		rawList, ok := m[key]
		if !ok {
			continue
		}
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(rawList, &list); err != nil {
			return nil, fmt.Errorf("unexpected cart items payload: %w", err)
		}
		for _, entry := range list {
			item := models.CartItem{
				ProductID: stringField(entry, productIDKeys),
				Quantity:  int(numberField(entry, quantityKeys)),
				UnitPrice: numberField(entry, unitPriceKeys),
			}
			cart.Items = append(cart.Items, item)
		}
		break
	}

	cart.TotalItems = int(numberField(m, totalItemKeys))
	if cart.TotalItems == 0 {
		cart.TotalItems = models.CountItems(cart.Items)
	}

	cart.TotalPrice = numberField(m, totalPriceKeys)
	if cart.TotalPrice == 0 {
		for _, it := range cart.Items {
			cart.TotalPrice += float64(it.Quantity) * it.UnitPrice
		}
	}

	cart.DiscountAmount = numberField(m, discountKeys)

	return cart, nil
}

// stringField returns the first present key as a string, accepting
// numeric ids.
func stringField(m map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// numberField returns the first present key as a float64, accepting
// numeric strings.
func numberField(m map[string]json.RawMessage, keys []string) float64 {
	for _, key := range keys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
