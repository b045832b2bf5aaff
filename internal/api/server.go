// Package api provides the assembly pipeline's REST and WebSocket surface:
// POST /documents, GET /task_status/{id}, the /language_codes,
// /resource_types, /resource_codes enumeration routes, and a /ws progress
// channel — modeled on the teacher's internal/api/server.go route table
// and middleware chain.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/scriptoria/weaver/internal/catalog"
	"github.com/scriptoria/weaver/internal/docstore"
	"github.com/scriptoria/weaver/internal/fetcher"
	"github.com/scriptoria/weaver/internal/logging"
	"github.com/scriptoria/weaver/internal/orchestrator"
	"github.com/scriptoria/weaver/internal/server"
	"github.com/scriptoria/weaver/internal/sqlitestore"
)

// Start builds the pipeline collaborators (catalog, fetcher, docstore,
// orchestrator), wires them into an HTTP server, and blocks serving
// requests until the process exits or ListenAndServe errors.
func Start(cfg Config) error {
	ServerConfig = cfg

	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Pipeline.WorkingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	f := fetcher.New(cfg.Pipeline.WorkingDir, cfg.Pipeline.CatalogURL, cfg.Pipeline.CatalogStale, cfg.Pipeline.FetchWorkers)

	entries, err := f.EnsureCatalog(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	cat := catalog.Load(entries)

	docStoreDir := cfg.DocStoreDir
	if docStoreDir == "" {
		docStoreDir = cfg.Pipeline.OutputDir
	}
	ds, err := docstore.New(docStoreDir)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}

	taskStore, err := newTaskStore(cfg.TaskStoreDBPath)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}

	orc = orchestrator.New(cfg.Pipeline, cat, f, taskStore)
	orc.DocStore = ds

	GlobalHub = NewHub()
	go GlobalHub.Run()

	GlobalWebSocketRateLimiter = NewWebSocketRateLimiter()

	orc.OnPhase = func(taskID, phase string) {
		BroadcastProgress(taskID, phase, phase, 0)
	}
	orc.OnDone = func(taskID string, state orchestrator.TaskState, errMsg string) {
		if state == orchestrator.StateSuccess {
			BroadcastComplete(taskID, "document assembled", nil)
		} else {
			BroadcastError(taskID, errMsg)
		}
	}

	mux := setupRoutes()

	protocol := "http"
	wsProtocol := "ws"
	if cfg.TLS.Enabled {
		protocol = "https"
		wsProtocol = "wss"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or a reverse proxy for production")
	}
	logging.ServerStartup("assembly_api", protocol, cfg.Port,
		"websocket_protocol", wsProtocol,
		"working_dir", server.AbsPath(cfg.Pipeline.WorkingDir))

	cspConfig := server.APICSPConfig()
	var handler http.Handler = server.SecurityHeadersWithCSP(cspConfig, mux)

	if cfg.Auth.Enabled {
		handler = AuthMiddleware(cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api", "enabled", true)
	} else {
		logging.SecurityEvent("authentication_configured", "api", "enabled", false)
	}

	if cfg.RateLimitRequests > 0 {
		rateLimitConfig := RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		}
		if rateLimitConfig.BurstSize == 0 {
			rateLimitConfig.BurstSize = 10
		}
		rateLimiter := NewRateLimiter(rateLimitConfig)
		handler = rateLimiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", rateLimitConfig.RequestsPerMinute,
			"burst_size", rateLimitConfig.BurstSize)
	}

	corsConfig := server.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}
	handler = server.CORSMiddlewareWithConfig(corsConfig, handler)

	handler = logging.CombinedMiddleware(handler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	if cfg.TLS.Enabled {
		return http.ListenAndServeTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile, handler)
	}
	return http.ListenAndServe(addr, handler)
}

// newTaskStore returns an in-memory Store by default, or a SQLite-backed
// one (surviving process restarts, per spec.md §5) when dbPath is set.
func newTaskStore(dbPath string) (orchestrator.Store, error) {
	if dbPath == "" {
		return orchestrator.NewMemStore(), nil
	}
	return sqlitestore.Open(dbPath)
}

func setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/documents", handleDocuments)
	mux.HandleFunc("/task_status/", handleTaskStatus)
	mux.HandleFunc("/language_codes", handleLanguageCodes)
	mux.HandleFunc("/resource_types", handleResourceTypes)
	mux.HandleFunc("/resource_codes", handleResourceCodes)

	wsConfig := DefaultWebSocketSecurityConfig()
	wsConfig.AllowedOrigins = ServerConfig.AllowedOrigins
	if len(wsConfig.AllowedOrigins) == 0 {
		wsConfig.AllowedOrigins = []string{"*"}
	}
	wsConfig.RequireAuth = ServerConfig.Auth.Enabled
	wsConfig.AuthConfig = ServerConfig.Auth
	mux.HandleFunc("/ws", SecureWebSocketHandler(GlobalHub, wsConfig, GlobalWebSocketRateLimiter))

	return mux
}
