package api

import "github.com/scriptoria/weaver/internal/config"

// Config holds the HTTP server configuration: the pipeline Config plus the
// transport-level settings that have no meaning outside this package.
type Config struct {
	Pipeline config.Config

	Port              int
	DocStoreDir       string
	TaskStoreDBPath   string // non-empty selects sqlitestore.Store over the default in-memory Store
	RateLimitRequests int    // Requests per minute (0 = disabled)
	RateLimitBurst    int
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS allowed origins (empty = allow all)
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// ServerConfig is the active server configuration.
var ServerConfig Config
