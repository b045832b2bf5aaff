// Command weaver is the CLI entrypoint for the Resource Acquisition and
// Interleaved Assembly Pipeline: it starts the HTTP/WebSocket API surface
// that fronts the Catalog Resolver, Asset Fetcher, and Pipeline
// Orchestrator.
package main

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/scriptoria/weaver/internal/api"
	"github.com/scriptoria/weaver/internal/config"
)

const version = "0.1.0"

// CLI defines weaver's command-line interface, noun-first like the
// teacher's capsule CLI but scoped to this system's one collaborator
// surface: the assembly API server.
var CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the resource-assembly HTTP/WebSocket API server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ServeCmd starts the REST/WebSocket API described in spec.md §6.
type ServeCmd struct {
	Port               int      `help:"HTTP server port" default:"8080"`
	WorkingDir         string   `help:"Working directory for fetched resources and the catalog cache" type:"path"`
	OutputDir          string   `help:"Output directory for assembled documents (default: working dir)" type:"path"`
	CatalogURL         string   `help:"Catalog JSON URL"`
	CatalogStaleMin    int      `help:"Catalog cache staleness window, in minutes" default:"1440"`
	FetchWorkers       int      `help:"Bounded Asset Fetcher worker-pool size" default:"8"`
	PandocPath         string   `help:"External pandoc binary used for PDF/EPUB/DOCX export" default:"pandoc"`
	DocStoreDir        string   `help:"Directory for the content-addressed document store (default: output dir)" type:"path"`
	TaskStoreDB        string   `help:"SQLite database path for durable task status (default: in-memory, lost on restart)" type:"path"`
	AuthEnabled        bool     `help:"Require an API key on every request except / and /health"`
	APIKey             string   `help:"API key required when --auth-enabled is set"`
	RateLimitPerMinute int      `help:"Per-IP request budget; 0 disables rate limiting" default:"0"`
	RateLimitBurst     int      `help:"Per-IP burst allowance" default:"10"`
	AllowedOrigins     []string `help:"CORS allowed origins (empty allows all)"`
	TLSCert            string   `help:"TLS certificate file; enables HTTPS when set with --tls-key" type:"path"`
	TLSKey             string   `help:"TLS private key file" type:"path"`
}

// Run builds an api.Config from the environment-overlaid pipeline defaults
// plus CLI flags, then blocks serving requests.
func (c *ServeCmd) Run() error {
	pipeline := config.Default()
	if c.WorkingDir != "" {
		pipeline.WorkingDir = c.WorkingDir
	}
	if c.OutputDir != "" {
		pipeline.OutputDir = c.OutputDir
	}
	if c.CatalogURL != "" {
		pipeline.CatalogURL = c.CatalogURL
	}
	if c.CatalogStaleMin > 0 {
		pipeline.CatalogStale = time.Duration(c.CatalogStaleMin) * time.Minute
	}
	if c.FetchWorkers > 0 {
		pipeline.FetchWorkers = c.FetchWorkers
	}
	if c.PandocPath != "" {
		pipeline.PandocPath = c.PandocPath
	}

	cfg := api.Config{
		Pipeline:          pipeline,
		Port:              c.Port,
		DocStoreDir:       c.DocStoreDir,
		TaskStoreDBPath:   c.TaskStoreDB,
		RateLimitRequests: c.RateLimitPerMinute,
		RateLimitBurst:    c.RateLimitBurst,
		AllowedOrigins:    c.AllowedOrigins,
		Auth: api.AuthConfig{
			Enabled: c.AuthEnabled,
			APIKey:  c.APIKey,
		},
		TLS: api.TLSConfig{
			Enabled:  c.TLSCert != "" && c.TLSKey != "",
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		},
	}
	return api.Start(cfg)
}

// VersionCmd prints the binary's version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("weaver version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("weaver"),
		kong.Description("Resource Acquisition and Interleaved Assembly Pipeline"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
