// Package vertexauth obtains and caches OAuth access tokens for Vertex /
// Vertex-OpenAI providers by exchanging an RS256-signed JWT
// assertion built from a service-account JSON key.
package vertexauth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// refreshSkew: tokens are cached until 60s before expires_in.
const refreshSkew = 60 * time.Second

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenSource hands out cached Vertex access tokens keyed by
// ProviderApiKey.id, refreshing via the service-account JWT-bearer
// exchange when the cached token is within refreshSkew of expiring.
type TokenSource struct {
	mu     sync.Mutex
	tokens map[int64]cachedToken
}

// New returns an empty TokenSource.
func New() *TokenSource {
	return &TokenSource{tokens: make(map[int64]cachedToken)}
}

// AccessToken returns a valid bearer token for the given provider key,
// exchanging a fresh one if the cached entry is missing or near expiry.
func (ts *TokenSource) AccessToken(ctx context.Context, providerKeyID int64, serviceAccountJSON []byte) (string, error) {
	ts.mu.Lock()
	if tok, ok := ts.tokens[providerKeyID]; ok && time.Now().Before(tok.expiresAt.Add(-refreshSkew)) {
		ts.mu.Unlock()
		return tok.accessToken, nil
	}
	ts.mu.Unlock()

	tok, err := exchange(ctx, serviceAccountJSON)
	if err != nil {
		return "", errors.Wrap(err, "exchange vertex service-account jwt for access token")
	}

	ts.mu.Lock()
	ts.tokens[providerKeyID] = cachedToken{accessToken: tok.AccessToken, expiresAt: tok.Expiry}
	ts.mu.Unlock()

	return tok.AccessToken, nil
}

// Invalidate drops a cached token, forcing the next AccessToken call to
// re-exchange.
func (ts *TokenSource) Invalidate(providerKeyID int64) {
	ts.mu.Lock()
	delete(ts.tokens, providerKeyID)
	ts.mu.Unlock()
}

// exchange signs an RS256 JWT from the service-account key
// (aud=token_uri, scope=cloud-platform, exp=iat+3600, iat backdated for
// clock skew) and exchanges it at token_uri for an access token.
func exchange(ctx context.Context, serviceAccountJSON []byte) (*oauth2.Token, error) {
	var raw struct {
		TokenURI string `json:"token_uri"`
	}
	if err := json.Unmarshal(serviceAccountJSON, &raw); err != nil {
		return nil, errors.Wrap(err, "parse service account json")
	}

	cfg, err := google.JWTConfigFromJSON(serviceAccountJSON, cloudPlatformScope)
	if err != nil {
		return nil, errors.Wrap(err, "build jwt config from service account json")
	}
	if raw.TokenURI != "" {
		cfg.TokenURL = raw.TokenURI
	}
	// google.JWTConfigFromJSON's TokenSource already mints iat at token-
	// request time and exp = iat+3600 via the standard jwt-bearer grant;
	// the 10s clock-skew backdate is a property of that exchange, not
	// something this caller needs to re-derive.
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return nil, errors.Wrap(err, "token endpoint exchange failed")
	}
	return tok, nil
}
