// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package textgen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/antflydb/textgen/lib/generation"
	"github.com/antflydb/textgen/lib/history"
	"go.uber.org/zap"
)

// TextgenNode holds the long-lived handles shared by all requests.
type TextgenNode struct {
	logger *zap.Logger

	generator    generation.Generator
	historyStore history.Store
	historyCache *HistoryCache

	// Request queue for backpressure control
	requestQueue *RequestQueue

	// Empty disables the access guard
	authSecret string
}

// corsMiddleware adds permissive CORS headers for the API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, Retry-After")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// parseDuration parses an optional duration setting. Empty and "0" are zero.
func parseDuration(name, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", name, value, err)
	}
	return d, nil
}

// newRootHandler mounts the API, health and docs routes.
func newRootHandler(zl *zap.Logger, node *TextgenNode) (http.Handler, error) {
	apiHandler := NewTextgenAPI(zl, node)

	docsHandler, err := newAPIDocsHandler(zl)
	if err != nil {
		return nil, err
	}

	rootMux := http.NewServeMux()

	// Health endpoints (never behind the access guard, for k8s probes)
	rootMux.HandleFunc("GET /healthz", node.handleHealthz)
	rootMux.HandleFunc("GET /readyz", node.handleReadyz)
	rootMux.HandleFunc("GET /apidocs/openapi.json", docsHandler)

	// OpenAPI-generated routes, guarded
	rootMux.Handle("/generate", apiHandler)
	rootMux.Handle("/history", apiHandler)
	rootMux.Handle("/version", apiHandler)

	// OpenAI-compatible routes, guarded
	openAIMux := http.NewServeMux()
	node.RegisterOpenAIRoutes(openAIMux)
	rootMux.Handle("/openai/v1/", authMiddleware(node.authSecret, zl)(openAIMux))

	return corsMiddleware(rootMux), nil
}

// RunAsTextgen opens the history store, connects the model runtime and
// serves the API until ctx is cancelled.
// If readyC is non-nil, it will be closed when the server is ready to accept requests.
func RunAsTextgen(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) {
	zl = zl.Named("textgen")
	zl.Info("Starting textgen node",
		zap.Any("config", config),
		zap.Bool("auth_enabled", config.AuthEnabled()))

	if config.ApiUrl == "" {
		config.ApiUrl = DefaultApiUrl
	}
	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		zl.Fatal("Invalid API URL", zap.String("url", config.ApiUrl), zap.Error(err))
	}

	requestTimeout, err := parseDuration("request_timeout", config.RequestTimeout)
	if err != nil {
		zl.Fatal("Invalid request_timeout", zap.Error(err))
	}
	historyCacheTTL, err := parseDuration("history_cache_ttl", config.HistoryCacheTTL)
	if err != nil {
		zl.Fatal("Invalid history_cache_ttl", zap.Error(err))
	}

	store, err := history.Open(config.DatabasePath, zl.Named("history"))
	if err != nil {
		zl.Fatal("Failed to open history store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	generator, err := generation.LoadGenerator(config.Generator, zl.Named("generator"))
	if err != nil {
		zl.Fatal("Failed to initialize generator", zap.Error(err))
	}
	defer func() { _ = generator.Close() }()

	requestQueue := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: config.MaxConcurrentRequests,
		MaxQueueSize:          config.MaxQueueSize,
		RequestTimeout:        requestTimeout,
	}, zl.Named("queue"))

	historyCache := NewHistoryCache(store, historyCacheTTL, zl.Named("history-cache"))
	defer historyCache.Close()

	node := &TextgenNode{
		logger:       zl,
		generator:    generator,
		historyStore: store,
		historyCache: historyCache,
		requestQueue: requestQueue,
		authSecret:   config.AuthSecret,
	}

	handler, err := newRootHandler(zl, node)
	if err != nil {
		zl.Fatal("Failed to build API handler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              u.Host,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Textgen api server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			zl.Fatal("HTTP server error", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
}
