// Package core provides the Engram memory client: a pluggable
// long-term memory engine for LLM applications.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Operational defaults and bounds.
const (
	// DefaultSearchK is how many similar memories each candidate fact
	// is compared against during Add.
	DefaultSearchK = 10

	// DefaultLimit applies to Search and GetAll when no limit is set.
	DefaultLimit = 100

	// MaxLimit is the largest limit Search and GetAll accept. Larger
	// values are rejected, not clamped.
	MaxLimit = 1000

	// DefaultParallelism bounds concurrent embed and search calls
	// during Add.
	DefaultParallelism = 4
)

// Config is the complete configuration for a Client.
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 1536,
//	    },
//	    VectorStore: core.VectorStoreConfig{
//	        Provider: "sqlite",
//	        DBPath:   "./engram.db",
//	    },
//	}
type Config struct {
	// LLM configures the language model provider.
	LLM LLMConfig `json:"llm"`

	// Embedder configures the embedding provider.
	Embedder EmbedderConfig `json:"embedder"`

	// VectorStore configures the vector index backend.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// GraphStore configures the optional entity graph backend.
	GraphStore *GraphStoreConfig `json:"graph_store,omitempty"`

	// History configures the change ledger. When nil, the ledger
	// lives in a SQLite file next to the vector store.
	History *HistoryConfig `json:"history,omitempty"`

	// CustomFactPrompt replaces the fact extraction prompt.
	CustomFactPrompt string `json:"custom_fact_extraction_prompt,omitempty"`

	// CustomUpdatePrompt replaces the memory decision prompt.
	CustomUpdatePrompt string `json:"custom_update_memory_prompt,omitempty"`

	// SearchK overrides DefaultSearchK when positive.
	SearchK int `json:"search_k,omitempty"`

	// Parallelism overrides DefaultParallelism when positive.
	Parallelism int `json:"parallelism,omitempty"`
}

// LLMConfig configures the language model provider.
//
// Supported providers: openai, anthropic, ollama.
type LLMConfig struct {
	// Provider is the provider name.
	Provider string `json:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key"`

	// Model is the model name, provider default when empty.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig configures the embedding provider.
//
// Supported providers: openai, mock. The mock provider is
// deterministic and needs no network, intended for tests.
type EmbedderConfig struct {
	// Provider is the provider name.
	Provider string `json:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector width, 1536 when zero.
	Dimensions int `json:"dimensions,omitempty"`
}

// VectorStoreConfig configures the vector index backend.
//
// Supported providers: sqlite, postgres, chromem.
type VectorStoreConfig struct {
	// Provider is the backend name.
	Provider string `json:"provider"`

	// DBPath is the database file path for sqlite.
	DBPath string `json:"db_path,omitempty"`

	// DSN is the connection string for postgres.
	DSN string `json:"dsn,omitempty"`

	// CollectionName is the table or collection name, "memories"
	// when empty.
	CollectionName string `json:"collection_name,omitempty"`
}

// GraphStoreConfig configures the optional entity graph.
//
// Supported providers: sqlite.
type GraphStoreConfig struct {
	// Provider is the backend name.
	Provider string `json:"provider"`

	// DBPath is the database file path for sqlite.
	DBPath string `json:"db_path,omitempty"`
}

// HistoryConfig configures the change ledger.
//
// Supported drivers: sqlite3, postgres, mysql.
type HistoryConfig struct {
	// Driver is the database/sql driver name.
	Driver string `json:"driver"`

	// DSN is the driver connection string. For sqlite3 this is the
	// database file path.
	DSN string `json:"dsn"`
}

// LoadConfigFromEnv builds a Config from environment variables.
//
// A .env or .env.example file is searched for in the current directory
// and up to five levels above it, then loaded if found.
//
// Recognized variables:
//   - VECTOR_STORE_PROVIDER (sqlite, postgres, chromem)
//   - SQLITE_PATH, POSTGRES_DSN, COLLECTION_NAME
//   - GRAPH_STORE_ENABLED, GRAPH_SQLITE_PATH
//   - HISTORY_DRIVER, HISTORY_DSN
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := findEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	storeProvider := getEnvOrDefault("VECTOR_STORE_PROVIDER", "sqlite")
	vectorStore := VectorStoreConfig{
		Provider:       storeProvider,
		CollectionName: getEnvOrDefault("COLLECTION_NAME", "memories"),
	}
	switch storeProvider {
	case "postgres":
		vectorStore.DSN = os.Getenv("POSTGRES_DSN")
	default:
		vectorStore.DBPath = getEnvOrDefault("SQLITE_PATH", "./engram.db")
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	var llmBaseURL, llmDefaultModel string
	switch llmProvider {
	case "anthropic":
		llmDefaultModel = "claude-sonnet-4-20250514"
	case "ollama":
		llmBaseURL = getEnvOrDefault("LLM_BASE_URL", "http://localhost:11434")
		llmDefaultModel = "llama3.1"
	default:
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		llmDefaultModel = "gpt-4o-mini"
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "1536"))

	config := &Config{
		LLM: LLMConfig{
			Provider: llmProvider,
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", llmDefaultModel),
			BaseURL:  llmBaseURL,
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		VectorStore: vectorStore,
	}

	if os.Getenv("GRAPH_STORE_ENABLED") == "true" {
		config.GraphStore = &GraphStoreConfig{
			Provider: "sqlite",
			DBPath:   getEnvOrDefault("GRAPH_SQLITE_PATH", "./engram_graph.db"),
		}
	}

	if dsn := os.Getenv("HISTORY_DSN"); dsn != "" {
		config.History = &HistoryConfig{
			Driver: getEnvOrDefault("HISTORY_DRIVER", "sqlite3"),
			DSN:    dsn,
		}
	}

	return config, nil
}

// LoadConfigFromJSON builds a Config from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(KindInvalidArgument, "LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewError(KindInvalidArgument, "LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate checks that required fields are set and within bounds.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return NewError(KindInvalidArgument, "Validate", fmt.Errorf("%w: llm provider is required", ErrInvalidConfig))
	}
	if c.Embedder.Provider == "" {
		return NewError(KindInvalidArgument, "Validate", fmt.Errorf("%w: embedder provider is required", ErrInvalidConfig))
	}
	if c.VectorStore.Provider == "" {
		return NewError(KindInvalidArgument, "Validate", fmt.Errorf("%w: vector store provider is required", ErrInvalidConfig))
	}
	if c.SearchK < 0 || c.Parallelism < 0 {
		return NewError(KindInvalidArgument, "Validate", fmt.Errorf("%w: search_k and parallelism must not be negative", ErrInvalidConfig))
	}
	return nil
}

func (c *Config) searchK() int {
	if c.SearchK > 0 {
		return c.SearchK
	}
	return DefaultSearchK
}

func (c *Config) parallelism() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return DefaultParallelism
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// findEnvFile looks for .env or .env.example starting in the working
// directory and walking up to five parent directories.
func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 5; i++ {
		for _, name := range []string{".env", ".env.example"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
