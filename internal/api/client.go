package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-gateway/internal/models"
)

// ErrSessionExpired is returned when the upstream reports that the
// verification session is no longer valid. The server is authoritative
// over expiry races, so callers must treat this as final.
var ErrSessionExpired = errors.New("verification session expired")

// Client talks to the upstream storefront platform. All responses with
// variable cart shapes are normalized here, at the boundary.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// statusError is an upstream error response with its HTTP status.
type statusError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Error_  string `json:"error"`
}

func (e *statusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Error_
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, msg)
}

// do performs an authorized JSON request. An empty token sends no
// Authorization header. out may be nil for fire-and-forget calls.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode >= 400 {
		serr := &statusError{Status: resp.StatusCode}
		json.Unmarshal(raw, serr)
		return serr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to parse upstream response: %w", err)
		}
	}
	return nil
}

// SendCode asks the upstream to text a one-time code to the phone
// number. proofToken is the human-verification proof obtained before
// the call. Returns the opaque session_info correlating the challenge
// to its verification.
func (c *Client) SendCode(ctx context.Context, phoneNumber, proofToken string) (string, error) {
	var resp struct {
		SessionInfo string `json:"session_info"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/phone/send-code", "", map[string]string{
		"phone_number": phoneNumber,
		"proof_token":  proofToken,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionInfo, nil
}

// VerifyCode exchanges the code and challenge token for an identity.
func (c *Client) VerifyCode(ctx context.Context, phoneNumber, code, sessionInfo string) (*models.User, models.TokenPair, error) {
	var resp struct {
		IDToken      string       `json:"id_token"`
		RefreshToken string       `json:"refresh_token"`
		User         *models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/phone/verify-code", "", map[string]string{
		"phone_number": phoneNumber,
		"code":         code,
		"session_info": sessionInfo,
	}, &resp)
	if err != nil {
		if isSessionExpired(err) {
			return nil, models.TokenPair{}, ErrSessionExpired
		}
		return nil, models.TokenPair{}, err
	}
	return resp.User, models.TokenPair{IDToken: resp.IDToken, RefreshToken: resp.RefreshToken}, nil
}

// Login performs the direct email/password exchange.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, models.TokenPair, error) {
	var resp struct {
		Tokens models.TokenPair `json:"tokens"`
		User   *models.User     `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, models.TokenPair{}, err
	}
	return resp.User, resp.Tokens, nil
}

// Logout invalidates the bearer upstream. Best-effort: callers clear
// the local session regardless of the result.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// Refresh mints a new bearer from the refresh credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var resp struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/refresh-token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return models.TokenPair{}, err
	}
	pair := models.TokenPair{IDToken: resp.IDToken, RefreshToken: resp.RefreshToken}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

// MergeCart folds the guest-session cart into the account's server
// cart and returns the resulting authoritative cart.
func (c *Client) MergeCart(ctx context.Context, token, guestSessionID string) (*models.Cart, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/cart/merge", token, map[string]string{
		"guest_session_id": guestSessionID,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return NormalizeCart(raw)
}

// GetCart fetches the account's authoritative cart.
func (c *Client) GetCart(ctx context.Context, token string) (*models.Cart, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/cart", token, nil, &raw); err != nil {
		return nil, err
	}
	return NormalizeCart(raw)
}

// AddCartItem adds a line to the account cart.
func (c *Client) AddCartItem(ctx context.Context, token string, item models.CartItem) (*models.Cart, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/cart/items", token, item, &raw); err != nil {
		return nil, err
	}
	return NormalizeCart(raw)
}

// UpdateCartItem sets a line's quantity on the account cart.
func (c *Client) UpdateCartItem(ctx context.Context, token, productID string, quantity int) (*models.Cart, error) {
	var raw json.RawMessage
	path := "/cart/items/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodPut, path, token, map[string]int{"quantity": quantity}, &raw); err != nil {
		return nil, err
	}
	return NormalizeCart(raw)
}

// RemoveCartItem deletes a line from the account cart.
func (c *Client) RemoveCartItem(ctx context.Context, token, productID string) (*models.Cart, error) {
	var raw json.RawMessage
	path := "/cart/items/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodDelete, path, token, nil, &raw); err != nil {
		return nil, err
	}
	return NormalizeCart(raw)
}

// ClearCart empties the account cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/cart", token, nil, nil)
}

// WishlistCount returns the account's wishlist size for badge counts.
func (c *Client) WishlistCount(ctx context.Context, token string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/wishlist/count", token, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Ping checks upstream reachability and reports the round trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.do(ctx, http.MethodGet, "/health", "", nil, nil)
	return time.Since(start), err
}

// isSessionExpired recognizes the upstream's expired-challenge
// response in either its coded or free-text form.
func isSessionExpired(err error) bool {
	var serr *statusError
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code == "SESSION_EXPIRED" {
		return true
	}
	msg := strings.ToLower(serr.Message + " " + serr.Error_)
	return strings.Contains(msg, "session expired") || strings.Contains(msg, "session has expired")
}
