package localrag

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the localrag engine. Fields mirror
// the persisted settings keys in the store's settings table; CLI flags
// and environment variables override the values loaded here.
type Config struct {
	// DBPath is the full path to the SQLite database file. If empty,
	// defaults to ~/.localrag/<DBName>.db.
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName names the database file when DBPath is unset.
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// unset: "home" (default) uses ~/.localrag/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// GPUEngineURL / WasmEngineURL are the local-only base URLs for the
	// two ModelEngine backends.
	GPUEngineURL  string `json:"gpu_engine_url" yaml:"gpu_engine_url"`
	WasmEngineURL string `json:"wasm_engine_url" yaml:"wasm_engine_url"`

	ChatModel      string `json:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim" yaml:"embedding_dim"`

	// Retrieval and generation defaults (settings keys, §6).
	ChunkSize               int      `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap            int      `json:"chunk_overlap" yaml:"chunk_overlap"`
	TopK                    int      `json:"top_k" yaml:"top_k"`
	Temperature             float64  `json:"temperature" yaml:"temperature"`
	MaxTokens               int      `json:"max_tokens" yaml:"max_tokens"`
	Theme                   string   `json:"theme" yaml:"theme"` // light | dark | auto
	EnableWebSearch         bool     `json:"enable_web_search" yaml:"enable_web_search"`
	WebSearchSources        []string `json:"web_search_sources" yaml:"web_search_sources"`
	WebSearchMaxURLs        int      `json:"web_search_max_urls" yaml:"web_search_max_urls"`
	WebSearchProxyURL         string   `json:"web_search_proxy_url" yaml:"web_search_proxy_url"`
	WebPageCacheTTLSeconds    int      `json:"web_page_cache_ttl_seconds" yaml:"web_page_cache_ttl_seconds"`
	EmbeddingBatchConcurrency int      `json:"embedding_batch_concurrency" yaml:"embedding_batch_concurrency"`

	// ExtensionSecret signs/verifies the bearer token the companion
	// browser extension presents when it attaches to the search bridge
	// over its websocket seam (§4.7's third provider). Empty makes New
	// generate and persist a random secret in the settings store on
	// first run, so tokens stay valid across restarts without requiring
	// configuration.
	ExtensionSecret string `json:"extension_secret" yaml:"extension_secret"`

	// Generation tunables (§9 Open Question 1). HistoryLimit caps how many
	// prior conversation messages Query and SearchWeb render into the
	// prompt; HistoryWeight, FaithfulnessThreshold and ChunkWindowSize are
	// carried here but no code path reads them.
	HistoryWeight         float64 `json:"history_weight" yaml:"history_weight"`
	HistoryLimit          int     `json:"history_limit" yaml:"history_limit"`
	FaithfulnessThreshold float64 `json:"faithfulness_threshold" yaml:"faithfulness_threshold"`
	ChunkWindowSize       int     `json:"chunk_window_size" yaml:"chunk_window_size"`
}

// DefaultConfig returns a Config with the defaults listed in spec §6.
func DefaultConfig() Config {
	return Config{
		DBName:                    "localrag",
		StorageDir:                "home",
		GPUEngineURL:              "http://127.0.0.1:8080",
		WasmEngineURL:             "http://127.0.0.1:8081",
		ChatModel:                 "default-chat",
		EmbeddingModel:            "default-embedding",
		EmbeddingDim:              768,
		ChunkSize:                 512,
		ChunkOverlap:              50,
		TopK:                      5,
		Temperature:               0.7,
		MaxTokens:                 2048,
		Theme:                     "auto",
		EnableWebSearch:           true,
		WebSearchSources:          []string{"wikipedia", "duckduckgo"},
		WebSearchMaxURLs:          3,
		WebPageCacheTTLSeconds:    24 * 3600,
		EmbeddingBatchConcurrency: 4,
		HistoryWeight:             0.3,
		HistoryLimit:              6,
		FaithfulnessThreshold:     0.5,
		ChunkWindowSize:           1,
	}
}

// LoadConfigFile merges YAML config from path on top of a copy of cfg,
// returning the merged result. Missing fields in the file keep cfg's value.
func LoadConfigFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	merged := cfg
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return merged, nil
}

// ResolveDBPath computes the final database path from config fields.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "localrag"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".localrag", name+".db")
	}
}

// Validate checks the configuration for invalid combinations of values.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunkSize must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunkOverlap must be in [0, chunkSize)", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: topK must be positive", ErrInvalidConfig)
	}
	if c.EmbeddingBatchConcurrency <= 0 {
		return fmt.Errorf("%w: embeddingBatchConcurrency must be positive", ErrInvalidConfig)
	}
	switch c.Theme {
	case "light", "dark", "auto":
	default:
		return fmt.Errorf("%w: theme must be light, dark or auto", ErrInvalidConfig)
	}
	return nil
}
