package models

// CartItem is a single cart line. ProductID is unique within a cart;
// re-adding the same product folds into the existing line.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Cart is the canonical cart shape. Upstream responses are normalized
// into this shape once, at the API boundary.
type Cart struct {
	Items          []CartItem `json:"items"`
	TotalItems     int        `json:"total_items"`
	TotalPrice     float64    `json:"total_price"`
	DiscountAmount float64    `json:"discount_amount"`
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || (len(c.Items) == 0 && c.TotalItems == 0)
}

// CountItems sums line quantities.
func CountItems(items []CartItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
