package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidToken is returned when the identity provider rejects a token.
var ErrInvalidToken = errors.New("auth: invalid id token")

// maxIdentityResponse caps how much of a lookup response is read.
const maxIdentityResponse = 1 << 20

// Identity is the verified subject of an ID token.
type Identity struct {
	UID   string
	Email string
}

// IdentityVerifier checks identity-provider ID tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// HTTPVerifier verifies ID tokens with the identity toolkit accounts:lookup
// REST endpoint: the token is posted as {"idToken": ...} and a valid token
// yields {"users": [{"localId": ..., "email": ...}]}.
type HTTPVerifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPVerifier creates a verifier for endpoint authenticated with apiKey.
func NewHTTPVerifier(endpoint, apiKey string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Verify looks the token up and returns its subject.
func (v *HTTPVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	u, err := url.Parse(v.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid identity endpoint: %w", err)
	}
	if v.apiKey != "" {
		q := u.Query()
		q.Set("key", v.apiKey)
		u.RawQuery = q.Encode()
	}

	payload, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		return nil, fmt.Errorf("%w: status %d %s", ErrInvalidToken, resp.StatusCode, msg)
	}

	user := gjson.GetBytes(body, "users.0")
	uid := user.Get("localId").String()
	if uid == "" {
		return nil, fmt.Errorf("%w: no user in lookup response", ErrInvalidToken)
	}
	return &Identity{UID: uid, Email: user.Get("email").String()}, nil
}
