package vertexauth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/vertexauth"
)

// serviceAccountJSON builds a minimal GCP service-account key document
// pointed at a local httptest token endpoint, so the RS256 JWT-bearer
// exchange can run end-to-end without reaching Google.
func serviceAccountJSON(t *testing.T, tokenURI string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	doc := map[string]string{
		"type":                        "service_account",
		"project_id":                  "test-project",
		"private_key_id":              "abc123",
		"private_key":                 string(pemKey),
		"client_email":                "svc@test-project.iam.gserviceaccount.com",
		"client_id":                   "1234567890",
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   tokenURI,
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func TestAccessTokenExchangesAgainstTokenURI(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	sa := serviceAccountJSON(t, srv.URL)
	ts := vertexauth.New()

	tok, err := ts.AccessToken(context.Background(), 7, sa)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.Equal(t, 1, requests)

	// Cached: a second call for the same provider key must not re-exchange.
	tok2, err := ts.AccessToken(context.Background(), 7, sa)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok2)
	require.Equal(t, 1, requests)
}

func TestAccessTokenPerProviderKeyIsolation(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-shared","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	sa := serviceAccountJSON(t, srv.URL)
	ts := vertexauth.New()

	tokA, err := ts.AccessToken(context.Background(), 1, sa)
	require.NoError(t, err)
	tokB, err := ts.AccessToken(context.Background(), 2, sa)
	require.NoError(t, err)
	require.Equal(t, tokA, tokB)
	// Each provider key has its own cache entry, so each one exchanged.
	require.Equal(t, 2, requests)
}

func TestInvalidateForcesReExchange(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	sa := serviceAccountJSON(t, srv.URL)
	ts := vertexauth.New()

	_, err := ts.AccessToken(context.Background(), 7, sa)
	require.NoError(t, err)
	require.Equal(t, 1, requests)

	ts.Invalidate(7)

	_, err = ts.AccessToken(context.Background(), 7, sa)
	require.NoError(t, err)
	require.Equal(t, 2, requests)
}

func TestAccessTokenInvalidServiceAccountJSONFails(t *testing.T) {
	ts := vertexauth.New()
	_, err := ts.AccessToken(context.Background(), 1, []byte("not json"))
	require.Error(t, err)
}
