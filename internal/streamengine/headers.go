package streamengine

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
)

// responseHopByHop are stripped when forwarding upstream -> client.
var responseHopByHop = []string{"Content-Length", "Content-Encoding", "Transfer-Encoding"}

// requestHopByHop are stripped when forwarding client -> upstream.
// Authorization is handled separately since it's replaced, not dropped.
var requestHopByHop = []string{"Host", "Content-Length", "Accept-Encoding", "X-Api-Key"}

// CopyResponseHeaders copies src into dst, stripping the hop-by-hop
// response headers the engine must not forward verbatim.
func CopyResponseHeaders(dst http.Header, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k, responseHopByHop) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// PrepareUpstreamHeaders strips request hop-by-hop headers and sets the
// selected upstream Authorization. Providers with native auth schemes
// (Vertex OAuth, Gemini query keys, Anthropic x-api-key) pass
// nativeAuth=true and install their credential themselves; the client's
// Authorization is dropped either way so it never leaks upstream.
func PrepareUpstreamHeaders(h http.Header, upstreamKey string, nativeAuth bool) {
	for _, k := range requestHopByHop {
		h.Del(k)
	}
	if nativeAuth {
		h.Del("Authorization")
		return
	}
	h.Set("Authorization", "Bearer "+upstreamKey)
}

func isHopByHop(header string, list []string) bool {
	for _, h := range list {
		if http.CanonicalHeaderKey(header) == http.CanonicalHeaderKey(h) {
			return true
		}
	}
	return false
}

// DecodeGzipIfNeeded decompresses body when contentEncoding is "gzip". An
// empty body decodes to empty bytes without error.
func DecodeGzipIfNeeded(body []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding != "gzip" {
		return body, nil
	}
	if len(body) == 0 {
		return []byte{}, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip reader")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read gzip body")
	}
	return out, nil
}
