package dispatch_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/configplane"
	"github.com/onehub/llmgate/internal/configplane/memstore"
	"github.com/onehub/llmgate/internal/dispatch"
	"github.com/onehub/llmgate/internal/vertexauth"
)

// newTestDeps builds a Deps sufficient to exercise the model-listing
// handlers, which never touch Logs or the upstream HTTP client.
func newTestDeps(store *memstore.Store) *dispatch.Deps {
	c := cache.New(cache.NewMapBackend(), store, time.Minute, time.Second)
	return &dispatch.Deps{
		Cache:            c,
		Store:            store,
		DeploymentSecret: "test-secret",
		VertexTokens:     vertexauth.New(),
		DirectClient:     &http.Client{},
	}
}

func newTestRouter(d *dispatch.Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d.RegisterRoutes(r)
	return r
}

func TestOpenAIModelListRequiresCredential(t *testing.T) {
	store := memstore.New()
	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodGet, "/openai/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenAIModelListFiltersDisabledModels(t *testing.T) {
	store := memstore.New()
	store.PutSystemAPIKey(configplane.SystemAPIKeyRow{ID: 1, APIKey: "sk-test", IsEnabled: true})
	store.PutProvider(configplane.ProviderRow{ID: 1, ProviderKey: "openai-main", IsEnabled: true})
	store.PutModel(configplane.ModelRow{ID: 10, ProviderID: 1, ModelName: "gpt-4", IsEnabled: true})
	store.PutModel(configplane.ModelRow{ID: 11, ProviderID: 1, ModelName: "gpt-4-disabled", IsEnabled: false})

	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodGet, "/openai/models", nil)
	req.Header.Set("Authorization", "Bearer sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gpt-4")
	assert.NotContains(t, w.Body.String(), "gpt-4-disabled")
}

func TestAnthropicModelListUsesXAPIKeyHeader(t *testing.T) {
	store := memstore.New()
	store.PutSystemAPIKey(configplane.SystemAPIKeyRow{ID: 1, APIKey: "sk-test", IsEnabled: true})
	store.PutProvider(configplane.ProviderRow{ID: 1, ProviderKey: "anthropic-main", IsEnabled: true})
	store.PutModel(configplane.ModelRow{ID: 10, ProviderID: 1, ModelName: "claude-x", IsEnabled: true})

	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodGet, "/anthropic/v1/models", nil)
	req.Header.Set("x-api-key", "sk-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "claude-x")
}

func TestGeminiModelListUsesKeyQueryParam(t *testing.T) {
	store := memstore.New()
	store.PutSystemAPIKey(configplane.SystemAPIKeyRow{ID: 1, APIKey: "sk-test", IsEnabled: true})
	store.PutProvider(configplane.ProviderRow{ID: 1, ProviderKey: "gemini-main", IsEnabled: true})
	store.PutModel(configplane.ModelRow{ID: 10, ProviderID: 1, ModelName: "gemini-pro", IsEnabled: true})

	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodGet, "/gemini/v1beta/models?key=sk-test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gemini-pro")
}

func TestModelListDeniedByInvalidCredential(t *testing.T) {
	store := memstore.New()
	store.PutSystemAPIKey(configplane.SystemAPIKeyRow{ID: 1, APIKey: "sk-test", IsEnabled: true})

	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodGet, "/openai/models", nil)
	req.Header.Set("Authorization", "Bearer sk-wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGeminiDispatchRejectsMalformedModelAction(t *testing.T) {
	store := memstore.New()
	r := newTestRouter(newTestDeps(store))

	req := httptest.NewRequest(http.MethodPost, "/gemini/v1beta/models/gemini-pro-no-colon", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
