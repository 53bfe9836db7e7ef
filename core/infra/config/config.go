package config

import (
	"os"
	"time"
)

const (
	defaultAPIBaseURL  = "https://app.flagship.example/api/v2"
	defaultRedisURL    = "redis://localhost:6379"
	defaultNATSURL     = "nats://localhost:4222"
	defaultCatalogPath = "config/resource_actions.yaml"
	defaultOutputDir   = "output"
	defaultGatewayAddr = ":8085"
	defaultCacheTTL    = 24 * time.Hour

	envAPIBaseURL  = "POLGOV_API_URL"
	envAPIKey      = "POLGOV_API_KEY"
	envRedisURL    = "REDIS_URL"
	envNATSURL     = "NATS_URL"
	envCatalogPath = "CATALOG_PATH"
	envOutputDir   = "OUTPUT_DIR"
	envGatewayAddr = "GATEWAY_ADDR"
	envCacheTTL    = "CACHE_TTL"
)

// Config holds runtime configuration for the governance tools.
type Config struct {
	APIBaseURL  string
	APIKey      string
	RedisURL    string
	NatsURL     string
	CatalogPath string
	OutputDir   string
	GatewayAddr string
	CacheTTL    time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	apiURL := os.Getenv(envAPIBaseURL)
	if apiURL == "" {
		apiURL = defaultAPIBaseURL
	}

	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}

	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}

	catalogPath := os.Getenv(envCatalogPath)
	if catalogPath == "" {
		catalogPath = defaultCatalogPath
	}

	outputDir := os.Getenv(envOutputDir)
	if outputDir == "" {
		outputDir = defaultOutputDir
	}

	gatewayAddr := os.Getenv(envGatewayAddr)
	if gatewayAddr == "" {
		gatewayAddr = defaultGatewayAddr
	}

	cacheTTL := defaultCacheTTL
	if raw := os.Getenv(envCacheTTL); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cacheTTL = d
		}
	}

	return &Config{
		APIBaseURL:  apiURL,
		APIKey:      os.Getenv(envAPIKey),
		RedisURL:    redisURL,
		NatsURL:     natsURL,
		CatalogPath: catalogPath,
		OutputDir:   outputDir,
		GatewayAddr: gatewayAddr,
		CacheTTL:    cacheTTL,
	}
}

// ExportDir is the directory for exported role documents under the output root.
func (c *Config) ExportDir() string { return c.OutputDir + "/exported_roles" }

// TemplateDir is the directory for cached remote templates under the output root.
func (c *Config) TemplateDir() string { return c.OutputDir + "/templates" }
