// Package config holds the process-wide configuration bundle, initialized
// from the environment at import time: package-level vars set once via
// small env helpers rather than a framework-managed settings object.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileBundle holds the optional YAML configuration bundle. Keys are lower-snake-case field names;
// loadFileBundle is best-effort and silent on a missing/unset path so a
// pure-env deployment is unaffected.
var fileBundle = loadFileBundle(os.Getenv("CONFIG_FILE"))

func loadFileBundle(path string) map[string]string {
	out := map[string]string{}
	if path == "" {
		return out
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var decoded map[string]string
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return out
	}
	return decoded
}

// lookup resolves key against the environment first, then the YAML
// bundle, so an env var always wins over the file it's deployed with.
func lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	if v, ok := fileBundle[strings.ToLower(key)]; ok {
		return v, true
	}
	return "", false
}

func envString(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

var (
	// ListenAddr is the address the gateway's HTTP server binds to.
	ListenAddr = envString("LISTEN_ADDR", ":3000")

	// DeploymentSecret signs/validates JWT key-refs.
	DeploymentSecret = envString("DEPLOYMENT_SECRET", "")

	// ExternalKVURL, when set, enables the Redis-compatible external-KV
	// cache backend; an empty value means the in-process map backend is
	// used exclusively.
	ExternalKVURL = envString("EXTERNAL_KV_URL", "")
	// ExternalKVPrefix namespaces all external-KV keys for this deployment.
	ExternalKVPrefix = envString("EXTERNAL_KV_PREFIX", "llmgate")

	// HTTPSProxyURL is used for upstream calls to providers with UseProxy set.
	HTTPSProxyURL = envString("HTTPS_PROXY_URL", "")

	// CachePositiveTTL and CacheNegativeTTL bound how long the Config
	// Cache trusts a loaded or absent entity.
	CachePositiveTTL = envDuration("CACHE_POSITIVE_TTL", 5*time.Minute)
	CacheNegativeTTL = envDuration("CACHE_NEGATIVE_TTL", 10*time.Second)

	// DebugEnabled toggles verbose structured logging.
	DebugEnabled = envBool("DEBUG", false)

	// UpstreamTimeout bounds the HTTP client's per-request transport
	// timeout.
	UpstreamTimeout = envDuration("UPSTREAM_TIMEOUT", 0)
)
