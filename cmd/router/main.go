package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cogneo/edge-router/internal/cache"
	"github.com/cogneo/edge-router/internal/config"
	"github.com/cogneo/edge-router/internal/embedding"
	"github.com/cogneo/edge-router/internal/pipeline"
	"github.com/cogneo/edge-router/internal/proxy"
	"github.com/cogneo/edge-router/internal/semcache"
	"github.com/cogneo/edge-router/internal/server"
	"github.com/cogneo/edge-router/internal/tenant"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if os.Getenv("ROUTER_PPROF") == "1" {
		go func() {
			logger.Info("pprof enabled on :6060")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				logger.Error("pprof server error", "error", err)
			}
		}()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	registry, err := tenant.NewRegistry(cfg.Tenancy.TenantsFile)
	if err != nil {
		logger.Error("failed to load tenant registry", "error", err, "file", cfg.Tenancy.TenantsFile)
		os.Exit(1)
	}
	logger.Info("tenant registry loaded", "file", cfg.Tenancy.TenantsFile, "tenancy", cfg.Tenancy.Enable)

	var exactCache *cache.Exact
	if cfg.Cache.Enable {
		exactCache, err = cache.New(cache.Options{
			URL:            cfg.Cache.URL,
			Cluster:        cfg.Cache.Cluster,
			TLSVerify:      cfg.Cache.TLSVerify,
			ConnectTimeout: cfg.Cache.ConnectTimeout,
			SocketTimeout:  cfg.Cache.SocketTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to configure exact cache", "error", err)
			os.Exit(1)
		}

		// A down Redis only logs a warning; every lookup degrades to a miss.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := exactCache.Ping(ctx); err != nil {
			logger.Warn("exact cache unreachable, requests will miss", "error", err)
		} else {
			logger.Info("exact cache enabled", "ttl", cfg.Cache.TTL, "cluster", cfg.Cache.Cluster)
		}
		cancel()
	}

	var semantic *semcache.Cache
	if cfg.Semantic.Enable {
		embedder := embedding.NewClient(
			cfg.Semantic.EmbedURL,
			cfg.Semantic.EmbedKey,
			cfg.Semantic.Embedder,
			cfg.Semantic.Dim,
			cfg.Semantic.Workers,
		)

		var store semcache.Store
		switch cfg.Semantic.Provider {
		case "opensearch":
			store, err = semcache.NewOpenSearch(semcache.OpenSearchOptions{
				URL:       cfg.Semantic.OSURL,
				Index:     cfg.Semantic.OSIndex,
				User:      cfg.Semantic.OSUser,
				Pass:      cfg.Semantic.OSPass,
				TLSVerify: cfg.Semantic.OSTLSVerify,
				Dim:       embedder.Dim(),
				Timeout:   cfg.Semantic.Timeout,
			})
		case "pgvector":
			store, err = semcache.NewPgVector(semcache.PgVectorOptions{
				DSN:     cfg.Semantic.PGDSN,
				Table:   cfg.Semantic.PGTable,
				Dim:     embedder.Dim(),
				Timeout: cfg.Semantic.Timeout,
			})
		}
		if err != nil {
			logger.Error("failed to configure semantic store", "error", err, "provider", cfg.Semantic.Provider)
			os.Exit(1)
		}

		semantic = semcache.New(store, embedder, cfg.Semantic.Threshold, cfg.Semantic.TTL, logger)

		// Best-effort index/table creation. A store that is unreachable at
		// startup stays enabled; lookups miss until it comes back.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := semantic.EnsureReady(ctx); err != nil {
			logger.Warn("semantic store not ready, lookups will miss until it recovers", "error", err)
		}
		cancel()
		logger.Info("semantic cache enabled",
			"provider", cfg.Semantic.Provider,
			"threshold", cfg.Semantic.Threshold,
			"embedder", cfg.Semantic.Embedder,
			"dim", embedder.Dim(),
		)
	}

	dispatcher := pipeline.NewDispatcher(pipeline.Options{
		Registry:  registry,
		Tenancy:   cfg.Tenancy.Enable,
		Normalize: cfg.Cache.Normalize,
		Exact:     exactCache,
		ExactTTL:  cfg.Cache.TTL,
		Semantic:  semantic,
		Proxy:     proxy.NewPool(cfg.Server.UpstreamTimeout),
		Logger:    logger,
	})

	handler := server.NewHandler(dispatcher, registry, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var metrics *server.Metrics
	if cfg.Metrics.Enable {
		metrics = server.NewMetrics()
		mux.Handle("GET /metrics", metrics.Handler())
		logger.Info("metrics enabled")
	}

	middlewares := []func(http.Handler) http.Handler{
		server.RequestID,
		server.Logger(logger),
		server.Recovery(logger),
		metrics.Middleware,
	}
	if cfg.CORS.Enable {
		middlewares = append(middlewares, server.CORS(cfg.CORS.AllowedOrigins()))
	}
	wrapped := server.Chain(mux, middlewares...)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           wrapped,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting edge router",
			"name", cfg.RouterName,
			"version", cfg.RouterVersion,
			"port", cfg.Server.Port,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if exactCache != nil {
		exactCache.Close()
	}
	logger.Info("server stopped")
}
