// Package dispatch implements the Dispatcher: HTTP
// routing for the three client dialects plus the unified /models listing,
// and the hot-path handler that threads one request through auth,
// resolution, access control, translation, the stream engine, and
// terminal logging.
package dispatch

import (
	"net/http"
	"time"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/configplane"
	"github.com/onehub/llmgate/internal/requestlog"
	"github.com/onehub/llmgate/internal/streamengine"
	"github.com/onehub/llmgate/internal/vertexauth"
)

// Deps bundles every external collaborator and shared piece of state the
// handlers close over. It is built once at process start by cmd/gatewayd
// and never mutated afterward, aside from the mutable state owned by its
// fields (QueueStrategy's counters, VertexTokens' cache).
type Deps struct {
	Cache *cache.Cache
	Store configplane.Store
	Logs  requestlog.Sink

	DeploymentSecret string

	KeyStrategy  streamengine.SelectionStrategy
	VertexTokens *vertexauth.TokenSource

	// Cooldowns deprioritizes a provider key the upstream just rejected
	// with 429/5xx. Optional:
	// a nil value disables the feature and selectProviderKey behaves as
	// if every enabled key were eligible.
	Cooldowns *streamengine.CooldownTracker

	// DirectClient is used for providers with UseProxy=false; ProxyClient
	// (optional) is used when UseProxy=true.
	DirectClient *http.Client
	ProxyClient  *http.Client
}

// httpClient picks the client appropriate for a provider's UseProxy flag,
// falling back to DirectClient if no ProxyClient was configured.
func (d *Deps) httpClient(useProxy bool) *http.Client {
	if useProxy && d.ProxyClient != nil {
		return d.ProxyClient
	}
	return d.DirectClient
}

// NewHTTPClient builds the shared, connection-pooled upstream client.
// A zero timeout means "rely on the transport's dial/TLS timeouts only";
// the gateway imposes no per-request deadline of its own.
func NewHTTPClient(timeout time.Duration, proxyURL string) (direct, proxy *http.Client) {
	direct = &http.Client{Timeout: timeout}
	if proxyURL == "" {
		return direct, nil
	}
	proxy = &http.Client{Timeout: timeout, Transport: proxyTransport(proxyURL)}
	return direct, proxy
}
