package dispatch

import (
	"net/http"
	"net/url"

	"github.com/Laisky/zap"
	"github.com/onehub/llmgate/internal/logger"
)

// proxyTransport returns an http.RoundTripper routing through proxyURL,
// for Providers configured with use_proxy=true. A malformed URL falls
// back to the default transport rather than failing process start.
func proxyTransport(proxyURL string) http.RoundTripper {
	u, err := url.Parse(proxyURL)
	if err != nil {
		logger.L.Error("invalid https proxy url, proxied providers will use the direct transport", zap.Error(err))
		return http.DefaultTransport
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyURL(u)
	return t
}
