// Package config reads settings from the environment. The MUGAK_ variables
// are canonical; PRIMERAN_USERNAME and PRIMERAN_PASSWORD are honored as
// credential fallbacks since the shared SSO predates the multi-platform
// setup and existing .env files use those names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the subcommands need.
type Config struct {
	// Shared SSO credentials, valid on all three platforms.
	Username string
	Password string

	// DBDir is the root for per-platform databases; see DBPath.
	DBDir string
	// OutputDir receives the exported JSON documents.
	OutputDir string
	// PlatformsFile optionally overrides the built-in platform definitions
	// (YAML).
	PlatformsFile string

	// Delay is the minimum spacing between network operations during a
	// crawl.
	Delay time.Duration
	// ProbeTimeout bounds manifest and stream probes; SegmentTimeout bounds
	// the CDN segment probes, which should fail fast.
	ProbeTimeout   time.Duration
	SegmentTimeout time.Duration
	// Language selects the manifest language for constructed probe URLs.
	Language string

	// MetricsAddr, when set (e.g. ":9186"), serves Prometheus metrics
	// during crawls.
	MetricsAddr string
}

// Load reads the configuration from the environment.
func Load() *Config {
	c := &Config{
		Username:       getEnv("MUGAK_USERNAME", os.Getenv("PRIMERAN_USERNAME")),
		Password:       getEnv("MUGAK_PASSWORD", os.Getenv("PRIMERAN_PASSWORD")),
		DBDir:          getEnv("MUGAK_DB_DIR", "platforms"),
		OutputDir:      getEnv("MUGAK_OUTPUT_DIR", "docs/data"),
		PlatformsFile:  os.Getenv("MUGAK_PLATFORMS_FILE"),
		Delay:          getEnvDuration("MUGAK_DELAY", 500*time.Millisecond),
		ProbeTimeout:   getEnvDuration("MUGAK_PROBE_TIMEOUT", 10*time.Second),
		SegmentTimeout: getEnvDuration("MUGAK_SEGMENT_TIMEOUT", 5*time.Second),
		Language:       getEnv("MUGAK_LANGUAGE", "eu"),
		MetricsAddr:    os.Getenv("MUGAK_METRICS_ADDR"),
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.SegmentTimeout <= 0 {
		c.SegmentTimeout = 5 * time.Second
	}
	return c
}

// DBPath returns the database file for one platform, e.g.
// platforms/primeran.eus/primeran.eus_content.db.
func (c *Config) DBPath(platformName string) string {
	return filepath.Join(c.DBDir, platformName, platformName+"_content.db")
}

// Validate checks the settings a crawl cannot run without.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("config: MUGAK_USERNAME and MUGAK_PASSWORD are required (or PRIMERAN_USERNAME / PRIMERAN_PASSWORD)")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain numbers mean milliseconds, matching the old scraper's delay
	// setting.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return defaultVal
}
