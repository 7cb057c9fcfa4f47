// Command gatewayd boots the LLM reverse-proxy gateway: it wires the
// Config Cache, request-log sink, and HTTP client, registers the
// client-facing dialect routes, and serves until SIGINT or SIGTERM, then
// shuts down gracefully.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onehub/llmgate/internal/cache"
	"github.com/onehub/llmgate/internal/config"
	"github.com/onehub/llmgate/internal/configplane"
	"github.com/onehub/llmgate/internal/configplane/memstore"
	"github.com/onehub/llmgate/internal/dispatch"
	"github.com/onehub/llmgate/internal/entity"
	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/requestlog"
	"github.com/onehub/llmgate/internal/streamengine"
	"github.com/onehub/llmgate/internal/vertexauth"
)

func main() {
	logger.L.Info("llmgate starting")

	if config.DeploymentSecret == "" {
		logger.L.Warn("DEPLOYMENT_SECRET is unset, JWT key-refs will be rejected")
	}

	ctx := context.Background()
	backend := cache.NewBackend(ctx, config.ExternalKVURL, config.ExternalKVPrefix)

	store := newConfigplaneStore()
	configCache := cache.New(backend, store, config.CachePositiveTTL, config.CacheNegativeTTL)
	if err := configCache.Reload(ctx); err != nil {
		logger.L.Fatal("initial cache warm-up failed", zap.Error(err))
	}

	direct, proxy := dispatch.NewHTTPClient(config.UpstreamTimeout, config.HTTPSProxyURL)

	// Persisting RequestLog entries is the administrative plane's job;
	// this binary's default sink just surfaces them at
	// debug level so a standalone run is still observable.
	logSink := requestlog.NewAsyncSink(1024, func(_ context.Context, entry entity.RequestLog) error {
		logger.L.Debug("request log",
			zap.String("request_id", entry.RequestID),
			zap.String("status", string(entry.Status)),
			zap.Int64("model_id", entry.ModelID),
			zap.Int64("cost", entry.CalculatedCost),
		)
		return nil
	})

	deps := &dispatch.Deps{
		Cache:            configCache,
		Store:            store,
		Logs:             logSink,
		DeploymentSecret: config.DeploymentSecret,
		KeyStrategy:      streamengine.NewQueueStrategy(),
		Cooldowns:        streamengine.NewCooldownTracker(),
		VertexTokens:     vertexauth.New(),
		DirectClient:     direct,
		ProxyClient:      proxy,
	}

	if !config.DebugEnabled {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	deps.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.L.Info("listening", zap.String("addr", config.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal("http server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("graceful shutdown failed", zap.Error(err))
	}
	deps.Logs.Close()
}

// newConfigplaneStore returns the administrative-plane Store
// implementation. A real deployment wires its own database-backed CRUD
// layer; this binary ships the in-memory reference Store so it can be
// run standalone.
func newConfigplaneStore() configplane.Store {
	return memstore.New()
}
