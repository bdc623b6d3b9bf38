package models

// Request/response shapes for the local HTTP surface.

type SendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success bool  `json:"success"`
	User    *User `json:"user,omitempty"`
}

type ChallengeResponse struct {
	Success          bool   `json:"success"`
	State            string `json:"state"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type CartItemRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type Counters struct {
	CartItems int `json:"cart_items"`
	Wishlist  int `json:"wishlist"`
}
