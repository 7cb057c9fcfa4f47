package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/auth"
	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/cachekey"
	"github.com/onehub/llmgate/internal/configplane"
)

type fakeStore struct {
	configplane.Store
	keysByAPIKey map[string]configplane.SystemAPIKeyRow
	keysByRef    map[string]configplane.SystemAPIKeyRow
}

func (f *fakeStore) GetSystemAPIKeyByHash(_ context.Context, hash string) (configplane.SystemAPIKeyRow, bool, error) {
	row, ok := f.keysByAPIKey[hash]
	return row, ok, nil
}
func (f *fakeStore) GetSystemAPIKeyByRefHash(_ context.Context, hash string) (configplane.SystemAPIKeyRow, bool, error) {
	row, ok := f.keysByRef[hash]
	return row, ok, nil
}

func TestAuthenticateLiteralKey(t *testing.T) {
	store := &fakeStore{keysByAPIKey: map[string]configplane.SystemAPIKeyRow{
		cachekey.HashSecret("sk-live-1"): {ID: 1, APIKey: "sk-live-1", IsEnabled: true},
	}}
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)
	id, err := auth.Authenticate(context.Background(), c, "deploy-secret", "sk-live-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Key.ID)
}

func TestAuthenticateRejectsUnknownLiteralKey(t *testing.T) {
	store := &fakeStore{keysByAPIKey: map[string]configplane.SystemAPIKeyRow{}}
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)
	_, err := auth.Authenticate(context.Background(), c, "deploy-secret", "sk-unknown")
	assert.Error(t, err)
}

func TestAuthenticateJWTKeyRef(t *testing.T) {
	store := &fakeStore{keysByRef: map[string]configplane.SystemAPIKeyRow{
		cachekey.HashSecret("ref-abc"): {ID: 2, Ref: "ref-abc", IsEnabled: true},
	}}
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)

	claims := auth.Claims{
		Subject: "user-1", Channel: "web", KeyRef: "ref-abc",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("deploy-secret"))
	require.NoError(t, err)

	id, err := auth.Authenticate(context.Background(), c, "deploy-secret", "jwt-"+signed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.Key.ID)
	assert.Equal(t, "web", id.Channel)
	assert.Equal(t, "user-1", id.Subject)
}

func TestAuthenticateJWTRejectsWrongSecret(t *testing.T) {
	store := &fakeStore{keysByRef: map[string]configplane.SystemAPIKeyRow{}}
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)

	claims := auth.Claims{KeyRef: "ref-abc"}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), c, "deploy-secret", "jwt-"+signed)
	assert.Error(t, err)
}
