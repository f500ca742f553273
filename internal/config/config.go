package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// LLM provider credentials. GOOGLE_API_KEY takes precedence over
	// GEMINI_API_KEY, matching the genai SDK's own lookup order.
	GeminiAPIKey  string
	WeatherAPIKey string

	StorePath  string
	Collection string
	DataDir    string

	EmbedDim int
	TopK     int

	ChunkSize     int
	ChunkOverlap  int
	BatchSize     int
	BatchInterval time.Duration

	// CallTimeout bounds every external call (LLM, weather, store).
	CallTimeout time.Duration
}

func Load() *Config {
	_ = godotenv.Load()
	return fromEnv()
}

// Reload re-reads .env with override semantics so the reset action picks up
// key changes made while the process is running.
func Reload() *Config {
	_ = godotenv.Overload()
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		GeminiAPIKey:  getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", "")),
		WeatherAPIKey: getEnv("OPENWEATHERMAP_API_KEY", ""),
		StorePath:     getEnv("VECTOR_DB_PATH", "./vector_db"),
		Collection:    getEnv("COLLECTION_NAME", "my_docs"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),
		TopK:          getEnvInt("RETRIEVAL_TOP_K", 10),
		ChunkSize:     getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),
		BatchSize:     getEnvInt("INGEST_BATCH_SIZE", 5),
		BatchInterval: getEnvDuration("INGEST_BATCH_INTERVAL", 2*time.Second),
		CallTimeout:   getEnvDuration("CALL_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
