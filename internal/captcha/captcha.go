package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrChallengeSetupFailed means a human-verification proof could not
// be obtained. Recoverable: the caller may retry setup.
var ErrChallengeSetupFailed = errors.New("human verification could not be completed")

// Verifier produces the human-verification proof required before the
// send-code endpoint may be called.
type Verifier interface {
	Obtain(ctx context.Context) (string, error)
}

// HTTPVerifier exchanges a site key and secret for a proof token at a
// challenge-verification endpoint.
type HTTPVerifier struct {
	Endpoint   string
	SiteKey    string
	Secret     string
	HTTPClient *http.Client
}

func NewHTTPVerifier(endpoint, siteKey, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		Endpoint:   endpoint,
		SiteKey:    siteKey,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Obtain(ctx context.Context) (string, error) {
	if v.Endpoint == "" {
		return "", fmt.Errorf("%w: no challenge endpoint configured", ErrChallengeSetupFailed)
	}

	payload, _ := json.Marshal(map[string]string{
		"site_key": v.SiteKey,
		"secret":   v.Secret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChallengeSetupFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChallengeSetupFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: challenge provider returned %d", ErrChallengeSetupFailed, resp.StatusCode)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Token == "" {
		return "", fmt.Errorf("%w: empty proof token", ErrChallengeSetupFailed)
	}
	return parsed.Token, nil
}

// Static returns a Verifier that always yields the given proof, for
// flows where the UI already solved the challenge.
func Static(token string) Verifier {
	return staticVerifier(token)
}

type staticVerifier string

func (s staticVerifier) Obtain(context.Context) (string, error) {
	if s == "" {
		return "", ErrChallengeSetupFailed
	}
	return string(s), nil
}
