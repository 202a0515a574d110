package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	QdrantURL    string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// Chunking bounds are word counts, not characters.
	ChunkMinWords     int `envconfig:"CHUNK_MIN_WORDS" default:"500"`
	ChunkMaxWords     int `envconfig:"CHUNK_MAX_WORDS" default:"800"`
	ChunkOverlapWords int `envconfig:"CHUNK_OVERLAP_WORDS" default:"100"`

	RetrievalTopK    int `envconfig:"RETRIEVAL_TOP_K" default:"3"`
	EmbedConcurrency int `envconfig:"EMBED_CONCURRENCY" default:"1"`

	// ProviderTimeout bounds every outbound embedding, generation, and
	// vector index call.
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`

	// APIToken enables static bearer-token auth when set.
	APIToken string `envconfig:"API_TOKEN"`

	JanitorInterval time.Duration `envconfig:"JANITOR_INTERVAL" default:"10m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("PARLEY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.ChunkMinWords >= cfg.ChunkMaxWords {
		return nil, fmt.Errorf("PARLEY_CHUNK_MIN_WORDS (%d) must be less than PARLEY_CHUNK_MAX_WORDS (%d)",
			cfg.ChunkMinWords, cfg.ChunkMaxWords)
	}
	if cfg.ChunkOverlapWords >= cfg.ChunkMaxWords {
		return nil, fmt.Errorf("PARLEY_CHUNK_OVERLAP_WORDS (%d) must be less than PARLEY_CHUNK_MAX_WORDS (%d)",
			cfg.ChunkOverlapWords, cfg.ChunkMaxWords)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAuth() bool {
	return c.APIToken != ""
}
