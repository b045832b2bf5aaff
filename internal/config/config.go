// Package config loads the environment-variable driven settings that
// parameterize every phase of the pipeline, following the teacher's
// flat-struct-plus-os.Getenv convention (see internal/api.Config).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in spec.md §6 ("Environment variables").
type Config struct {
	WorkingDir     string
	OutputDir      string
	CatalogURL     string
	CatalogStale   time.Duration
	FetchWorkers   int
	FetchTimeout   time.Duration
	ParseTimeout   time.Duration
	AssembleTimeout time.Duration
	ConvertTimeout time.Duration
	PandocPath     string // external pandoc binary used for PDF/EPUB/DOCX export
}

// Default returns the configuration with spec.md's documented defaults,
// then overlays whatever environment variables are set.
func Default() Config {
	c := Config{
		WorkingDir:      "/working/tn-temp",
		OutputDir:       "",
		CatalogURL:      "https://git.door43.org/api/v1/catalog",
		CatalogStale:    24 * time.Hour,
		FetchWorkers:    8,
		FetchTimeout:    120 * time.Second,
		ParseTimeout:    30 * time.Second,
		AssembleTimeout: 120 * time.Second,
		ConvertTimeout:  60 * time.Second,
		PandocPath:      "pandoc",
	}
	c.OutputDir = c.WorkingDir
	return c.overlayEnv()
}

func (c Config) overlayEnv() Config {
	if v := os.Getenv("WEAVER_WORKING_DIR"); v != "" {
		c.WorkingDir = v
		if os.Getenv("WEAVER_OUTPUT_DIR") == "" {
			c.OutputDir = v
		}
	}
	if v := os.Getenv("WEAVER_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("WEAVER_CATALOG_URL"); v != "" {
		c.CatalogURL = v
	}
	if v := envMinutes("WEAVER_CATALOG_STALE_MINUTES"); v > 0 {
		c.CatalogStale = time.Duration(v) * time.Minute
	}
	if v := envInt("WEAVER_FETCH_WORKERS"); v > 0 {
		c.FetchWorkers = v
	}
	if v := envSeconds("WEAVER_FETCH_TIMEOUT_SECONDS"); v > 0 {
		c.FetchTimeout = time.Duration(v) * time.Second
	}
	if v := envSeconds("WEAVER_PARSE_TIMEOUT_SECONDS"); v > 0 {
		c.ParseTimeout = time.Duration(v) * time.Second
	}
	if v := envSeconds("WEAVER_ASSEMBLE_TIMEOUT_SECONDS"); v > 0 {
		c.AssembleTimeout = time.Duration(v) * time.Second
	}
	if v := envSeconds("WEAVER_CONVERT_TIMEOUT_SECONDS"); v > 0 {
		c.ConvertTimeout = time.Duration(v) * time.Second
	}
	if v := os.Getenv("WEAVER_PANDOC_PATH"); v != "" {
		c.PandocPath = v
	}
	return c
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envMinutes(key string) int { return envInt(key) }
func envSeconds(key string) int { return envInt(key) }
