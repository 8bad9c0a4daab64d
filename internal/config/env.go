package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the explicit configuration handed to every component at construction.
type Config struct {
	DatabaseURL string

	// Embeddings
	EmbedProvider string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AIAPIKey      string
	EmbedModel    string
	EmbedDim      int
	EmbedBatch    int
	EmbedRetries  int
	EmbedBackoff  time.Duration
	EmbedTimeout  time.Duration
	EmbedRPS      float64

	// Chunking
	ChunkMode    string
	ChunkSize    int
	ChunkOverlap int

	// Triage
	MaxSizeBytes     int64
	AutoApproveBytes int64
	MinTextChars     int
	MinTextWords     int
	ReviewDomains    []string

	// Network budgets
	HeadTimeout     time.Duration
	DownloadTimeout time.Duration
	DocTimeout      time.Duration
	SourceTimeout   time.Duration
	FetchRetries    int
	UserAgent       string

	// Orchestration
	Concurrency     int
	RouterProbe     bool
	WebReadability  bool
	DiscoverLinks   bool
	LinkDiscoverMax int

	// Source lists and document service
	GoogleSheetID         string
	SheetRange            string
	SourcesFile           string
	GoogleCredentialsJSON string

	// Raw archive
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	JWTSecret string
	Port      string
	LogMode   string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("EMBED_PROVIDER", "openai"))

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		EmbedProvider: provider,
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      getEnvInt("EMBED_DIM", DefaultEmbedDim(provider)),
		EmbedBatch:    getEnvInt("EMBED_BATCH", 32),
		EmbedRetries:  getEnvInt("EMBED_RETRIES", 3),
		EmbedBackoff:  getEnvDuration("EMBED_BACKOFF", time.Second),
		EmbedTimeout:  getEnvDuration("EMBED_TIMEOUT", 60*time.Second),
		EmbedRPS:      getEnvFloat("EMBED_RPS", 0),

		ChunkMode:    strings.ToLower(getEnv("CHUNK_MODE", "chars")),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 1200),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		MaxSizeBytes:     getEnvInt64("MAX_SIZE_BYTES", 100*1024*1024),
		AutoApproveBytes: getEnvInt64("AUTO_APPROVE_BYTES", 5*1024*1024),
		MinTextChars:     getEnvInt("MIN_TEXT_CHARS", 200),
		MinTextWords:     getEnvInt("MIN_TEXT_WORDS", 20),
		ReviewDomains:    getEnvList("REVIEW_DOMAINS"),

		HeadTimeout:     getEnvDuration("HEAD_TIMEOUT", 8*time.Second),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		DocTimeout:      getEnvDuration("DOC_TIMEOUT", 30*time.Second),
		SourceTimeout:   getEnvDuration("SOURCE_TIMEOUT", 10*time.Minute),
		FetchRetries:    getEnvInt("FETCH_RETRIES", 2),
		UserAgent:       getEnv("USER_AGENT", "Mozilla/5.0 (compatible; Contexta-Ingest/1.0)"),

		Concurrency:     getEnvInt("CONCURRENCY", 4),
		RouterProbe:     getEnvBool("ROUTER_PROBE", true),
		WebReadability:  getEnvBool("WEB_READABILITY", false),
		DiscoverLinks:   getEnvBool("DISCOVER_LINKS", false),
		LinkDiscoverMax: getEnvInt("LINK_DISCOVER_MAX", 50),

		GoogleSheetID:         getEnv("GOOGLE_SHEET_ID", ""),
		SheetRange:            getEnv("SHEET_RANGE", "A:A"),
		SourcesFile:           getEnv("SOURCES_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		Port:      getEnv("PORT", "8080"),
		LogMode:   getEnv("LOG_MODE", "dev"),
	}

	return cfg
}

// Validate reports process-level misconfiguration. Anything returned here is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	switch c.EmbedProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "gemini":
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q not supported (openai|gemini)", c.EmbedProvider))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}
	if c.EmbedBatch < 1 || c.EmbedBatch > 100 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH must be within 1..100, got %d", c.EmbedBatch))
	}
	if c.EmbedRetries < 1 {
		errs = append(errs, fmt.Errorf("EMBED_RETRIES must be at least 1, got %d", c.EmbedRetries))
	}
	if c.ChunkMode != "chars" && c.ChunkMode != "words" {
		errs = append(errs, fmt.Errorf("CHUNK_MODE %q not supported (chars|words)", c.ChunkMode))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be within [0, CHUNK_SIZE=%d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.MaxSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SIZE_BYTES must be positive, got %d", c.MaxSizeBytes))
	}
	if c.AutoApproveBytes <= 0 || c.AutoApproveBytes > c.MaxSizeBytes {
		errs = append(errs, fmt.Errorf("AUTO_APPROVE_BYTES (%d) must be within (0, MAX_SIZE_BYTES=%d]", c.AutoApproveBytes, c.MaxSizeBytes))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("CONCURRENCY must be at least 1, got %d", c.Concurrency))
	}
	return errors.Join(errs...)
}

// ArchiveEnabled reports whether raw resources should be copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.BucketName != "" && c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// DefaultEmbedDim is the vector width of each provider's default embedding model.
func DefaultEmbedDim(provider string) int {
	if provider == "gemini" {
		return 768
	}
	return 1536
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
	return def
}

func getEnvList(key string) []string {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
