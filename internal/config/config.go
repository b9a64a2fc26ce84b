package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docoutline/internal/marker"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Pathstore connection. Ingest is disabled when PathstoreURL is empty.
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentStore int

	// Upload limits
	MaxUploadBytes int64

	// Outline parsing
	Catalog      string
	CatalogDir   string
	MaxLines     int
	ParseWorkers int

	// Chunking defaults. Nil type lists defer to the catalog policy.
	DefaultChunkSize int
	HeadingTypes     []marker.Type
	ArticleTypes     []marker.Type

	// Result cache
	CacheTTL  time.Duration
	RedisAddr string

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("DOCOUTLINE_API_KEY"),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentStore: envInt("MAX_CONCURRENT_STORE", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		Catalog:      envOr("CATALOG", "general"),
		CatalogDir:   os.Getenv("CATALOG_DIR"),
		MaxLines:     envInt("MAX_LINES", 200000),
		ParseWorkers: envInt("PARSE_WORKERS", 4),

		DefaultChunkSize: envInt("DEFAULT_CHUNK_SIZE", 1500),
		HeadingTypes:     envTypes("HEADING_TYPES"),
		ArticleTypes:     envTypes("ARTICLE_TYPES"),

		CacheTTL:  envDuration("CACHE_TTL", 10*time.Minute),
		RedisAddr: os.Getenv("REDIS_ADDR"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		OTelEnabled:     envBool("OTEL_ENABLED", false),
		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelServiceName: envOr("OTEL_SERVICE_NAME", "docoutline"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = 1
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 1500
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// IngestEnabled reports whether a pathstore is configured.
func (c Config) IngestEnabled() bool { return c.PathstoreURL != "" }

func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("DOCOUTLINE_API_KEY is required"))
	}
	if c.IngestEnabled() && c.PathstoreAPIKey == "" {
		errs = append(errs, errors.New("PATHSTORE_API_KEY is required when PATHSTORE_URL is set"))
	}
	if c.MaxLines < 0 {
		errs = append(errs, fmt.Errorf("MAX_LINES must not be negative, got %d", c.MaxLines))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// envTypes reads a comma-separated list of marker types. Entries that are
// not positive integers are skipped.
func envTypes(key string) []marker.Type {
	items := envList(key)
	if items == nil {
		return nil
	}
	out := make([]marker.Type, 0, len(items))
	for _, s := range items {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			out = append(out, marker.Type(n))
		}
	}
	return out
}
