package streamengine_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onehub/llmgate/internal/streamengine"
)

func TestCopyResponseHeadersStripsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Length", "100")
	src.Set("Content-Encoding", "gzip")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("X-Request-Id", "abc")

	dst := http.Header{}
	streamengine.CopyResponseHeaders(dst, src)

	assert.Empty(t, dst.Get("Content-Length"))
	assert.Empty(t, dst.Get("Content-Encoding"))
	assert.Empty(t, dst.Get("Transfer-Encoding"))
	assert.Equal(t, "abc", dst.Get("X-Request-Id"))
}

func TestPrepareUpstreamHeadersSetsBearerForOpenAIStyle(t *testing.T) {
	h := http.Header{}
	h.Set("X-Api-Key", "client-key")
	h.Set("Host", "example.com")
	streamengine.PrepareUpstreamHeaders(h, "sk-upstream", false)
	assert.Equal(t, "Bearer sk-upstream", h.Get("Authorization"))
	assert.Empty(t, h.Get("X-Api-Key"))
	assert.Empty(t, h.Get("Host"))
}

func TestPrepareUpstreamHeadersLeavesAuthUnsetForNativeAuth(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer client-token")
	streamengine.PrepareUpstreamHeaders(h, "unused", true)
	assert.Empty(t, h.Get("Authorization"))
}

func TestDecodeGzipEmptyBodyYieldsEmptyBytes(t *testing.T) {
	out, err := streamengine.DecodeGzipIfNeeded(nil, "gzip")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeGzipPassthroughWhenNotEncoded(t *testing.T) {
	out, err := streamengine.DecodeGzipIfNeeded([]byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}
