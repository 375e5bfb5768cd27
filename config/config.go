package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/smallnest/kbagents/log"
)

// Config holds everything the three programs read from the environment.
type Config struct {
	// OpenAI-compatible endpoint
	OpenAIBaseURL string
	OpenAIAPIKey  string

	ChatModel          string
	JudgeModel         string
	EmbeddingModel     string
	EmbeddingDims      int
	EmbeddingBatchSize int
	Temperature        float64

	// Ingestion
	PDFPath      string
	ChunkSize    int
	ChunkOverlap int
	RetrieverK   int

	// Vector store
	VectorStore      string
	VectorCollection string
	PGVectorURL      string
	QdrantURL        string
	QdrantAPIKey     string

	// SQL agent
	DBDriver    string
	DBDSN       string
	SQLMaxRows  int
	SQLReadOnly bool

	// Experiment tracking
	TrackingBackend string
	TrackingURI     string
	MLflowToken     string
	RedisAddr       string
	RedisPassword   string
	ExperimentName  string
	RunName         string

	// Graph execution
	RecursionLimit int
	NodeMaxRetries int

	LogLevel string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env file: %v", err)
	}

	cfg := &Config{
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),

		ChatModel:          getEnv("CHAT_MODEL", "gpt-4o-mini"),
		JudgeModel:         getEnv("JUDGE_MODEL", "gpt-4o"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:      getEnvInt("EMBEDDING_DIMENSIONS", 0),
		EmbeddingBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 256),
		Temperature:        getEnvFloat("TEMPERATURE", 0),

		PDFPath:      getEnv("PDF_PATH", "compact-guide-to-large-language-models.pdf"),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		RetrieverK:   getEnvInt("RETRIEVER_K", 4),

		VectorStore:      getEnv("VECTOR_STORE", "memory"),
		VectorCollection: getEnv("VECTOR_COLLECTION", "udacity"),
		PGVectorURL:      getEnv("PGVECTOR_URL", ""),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),

		DBDriver:    getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:       getEnv("DB_DSN", "Chinook_Sqlite.sqlite"),
		SQLMaxRows:  getEnvInt("SQL_MAX_ROWS", 0),
		SQLReadOnly: getEnvBool("SQL_READ_ONLY", false),

		TrackingBackend: getEnv("TRACKING_BACKEND", "sqlite"),
		TrackingURI:     getEnv("TRACKING_URI", "kbagents.db"),
		MLflowToken:     getEnv("MLFLOW_TRACKING_TOKEN", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		ExperimentName:  getEnv("EXPERIMENT_NAME", "udacity"),
		RunName:         getEnv("RUN_NAME", "l4_exercise_02"),

		RecursionLimit: getEnvInt("RECURSION_LIMIT", 25),
		NodeMaxRetries: getEnvInt("NODE_MAX_RETRIES", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.RetrieverK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVER_K must be positive, got %d", c.RetrieverK))
	}
	if c.RecursionLimit <= 0 {
		errs = append(errs, fmt.Errorf("RECURSION_LIMIT must be positive, got %d", c.RecursionLimit))
	}
	if c.SQLMaxRows < 0 {
		errs = append(errs, fmt.Errorf("SQL_MAX_ROWS must not be negative, got %d", c.SQLMaxRows))
	}

	switch c.VectorStore {
	case "memory", "qdrant":
	case "pgvector":
		if c.PGVectorURL == "" {
			errs = append(errs, errors.New("PGVECTOR_URL is required for VECTOR_STORE=pgvector"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore))
	}

	switch c.TrackingBackend {
	case "memory", "sqlite", "postgres", "redis", "mlflow":
	default:
		errs = append(errs, fmt.Errorf("unknown TRACKING_BACKEND %q", c.TrackingBackend))
	}

	switch strings.ToLower(c.DBDriver) {
	case "sqlite3", "sqlite", "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn("invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn("invalid %s=%q, using %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn("invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}
