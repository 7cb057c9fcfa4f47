// Package auth implements client-facing credential resolution: a literal
// SystemApiKey match, or a `jwt-<base64url-jwt>` key-ref signed with the
// deployment secret.
package auth

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/entity"
)

const jwtKeyRefPrefix = "jwt-"

// Claims is the JWT payload carried by a key-ref credential.
type Claims struct {
	Subject string `json:"sub"`
	Channel string `json:"channel"`
	KeyRef  string `json:"key_ref"`
	jwt.RegisteredClaims
}

// Identity is what a successful authentication yields: the resolved
// SystemApiKey plus the log-relevant channel/subject, when the
// credential was a JWT key-ref.
type Identity struct {
	Key     entity.SystemApiKey
	Channel string
	Subject string
}

// Authenticate resolves a raw client-presented credential against the
// cache. It does not distinguish header vs query-parameter origin; the
// dispatcher is responsible for extracting the raw string per dialect.
func Authenticate(ctx context.Context, c *cache.Cache, deploymentSecret, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, errors.Errorf("missing credential")
	}

	if !strings.HasPrefix(credential, jwtKeyRefPrefix) {
		key, found, err := c.GetSystemAPIKeyByAPIKey(ctx, credential)
		if err != nil {
			return Identity{}, errors.Wrap(err, "lookup system api key")
		}
		if !found || !key.IsEnabled {
			return Identity{}, errors.Errorf("credential not found")
		}
		return Identity{Key: key}, nil
	}

	return authenticateJWT(ctx, c, deploymentSecret, strings.TrimPrefix(credential, jwtKeyRefPrefix))
}

func authenticateJWT(ctx context.Context, c *cache.Cache, deploymentSecret, raw string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(deploymentSecret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errors.Errorf("invalid jwt key-ref")
	}
	if claims.KeyRef == "" {
		return Identity{}, errors.Errorf("jwt key-ref missing key_ref claim")
	}

	key, found, err := c.GetSystemAPIKeyByRef(ctx, claims.KeyRef)
	if err != nil {
		return Identity{}, errors.Wrap(err, "lookup system api key by ref")
	}
	if !found || !key.IsEnabled {
		return Identity{}, errors.Errorf("credential not found")
	}

	return Identity{Key: key, Channel: claims.Channel, Subject: claims.Subject}, nil
}
