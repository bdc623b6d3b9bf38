package models

// User is the authenticated storefront identity as returned by the
// upstream account service.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	IsVerified  bool    `json:"is_verified"`
	Role        *string `json:"role,omitempty"`
}

// TokenPair holds the bearer and refresh credentials issued by the
// upstream auth endpoints.
type TokenPair struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// AccountSession is the authenticated pair held by the session store.
// User and Token are always set and cleared together.
type AccountSession struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
