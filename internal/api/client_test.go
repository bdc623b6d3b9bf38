package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestSendCodeReturnsSessionInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/phone/send-code", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+15551234567", req["phone_number"])
		assert.Equal(t, "proof-1", req["proof_token"])

		json.NewEncoder(w).Encode(map[string]string{"session_info": "sess-abc"})
	})

	info, err := c.SendCode(context.Background(), "+15551234567", "proof-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-abc", info)
}

func TestVerifyCodeSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id_token":      "id-tok",
			"refresh_token": "ref-tok",
			"user":          map[string]interface{}{"id": "u1", "display_name": "Asha", "is_verified": true},
		})
	})

	user, tokens, err := c.VerifyCode(context.Background(), "+15551234567", "123456", "sess-abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.IsVerified)
	assert.Equal(t, "id-tok", tokens.IDToken)
	assert.Equal(t, "ref-tok", tokens.RefreshToken)
}

func TestVerifyCodeMapsServerExpiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "verification session expired, request a new code"})
	})

	_, _, err := c.VerifyCode(context.Background(), "+15551234567", "123456", "sess-abc")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyCodeOtherErrorsPassThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid code"})
	})

	_, _, err := c.VerifyCode(context.Background(), "+15551234567", "000000", "sess-abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
}

func TestMergeCartSendsBearerAndGuestSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cart/merge", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "guest-77", req["guest_session_id"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"items":       []map[string]interface{}{{"product_id": "P1", "quantity": 2, "unit_price": 3.0}},
			"total_items": 2,
		})
	})

	cart, err := c.MergeCart(context.Background(), "tok-1", "guest-77")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.TotalItems)
}

func TestLoginParsesNestedTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tokens": map[string]string{"id_token": "id-2", "refresh_token": "ref-2"},
			"user":   map[string]interface{}{"id": "u2", "display_name": "Ravi", "role": "customer"},
		})
	})

	user, tokens, err := c.Login(context.Background(), "ravi@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "id-2", tokens.IDToken)
	require.NotNil(t, user.Role)
	assert.Equal(t, "customer", *user.Role)
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id_token": "id-new"})
	})

	pair, err := c.Refresh(context.Background(), "ref-old")
	require.NoError(t, err)
	assert.Equal(t, "id-new", pair.IDToken)
	assert.Equal(t, "ref-old", pair.RefreshToken)
}

func TestWishlistCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wishlist/count", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"count": 4})
	})

	n, err := c.WishlistCount(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
