// Package config loads clipstash configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	clierrors "github.com/clipstash/clipstash/internal/errors"
)

// Config represents the complete clipstash configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Scanner    ScannerConfig    `yaml:"scanner" json:"scanner"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the document store and both indexes.
	// Default: ~/.clipstash
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// DropFolder is watched for files to import. Empty disables the
	// watcher unless watcher.enabled forces it on.
	DropFolder string `yaml:"drop_folder" json:"drop_folder"`
}

// SearchConfig configures hybrid search parameters.
// Weights and the RRF constant are configurable via:
//  1. User config (~/.config/clipstash/config.yaml)
//  2. Env vars (CLIPSTASH_VECTOR_WEIGHT, CLIPSTASH_KEYWORD_WEIGHT,
//     CLIPSTASH_RRF_CONSTANT) - highest priority
type SearchConfig struct {
	// VectorWeight is the weight for semantic similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// KeywordWeight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// OverFetchFactor controls how many chunk hits each index returns
	// per requested result, so fusion has enough overlap to rank.
	OverFetchFactor int `yaml:"overfetch_factor" json:"overfetch_factor"`

	// MaxResults caps the result count per query.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// SideTimeout bounds each index side of a query, e.g. "2s".
	SideTimeout string `yaml:"side_timeout" json:"side_timeout"`

	// Debounce is the type-to-search coalescing window, e.g. "150ms".
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	TargetChars  int `yaml:"target_chars" json:"target_chars"`
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`
	MaxChars     int `yaml:"max_chars" json:"max_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the Ollama embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the vector width. 0 auto-detects from the model.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	// Empty uses the default http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the embedding LRU cache capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ScannerConfig configures the background integrity scanner.
type ScannerConfig struct {
	// Interval between periodic scans, e.g. "5m".
	Interval string `yaml:"interval" json:"interval"`

	// SettleDelay is how long the indexes must be quiet before a
	// periodic scan runs, e.g. "2s".
	SettleDelay string `yaml:"settle_delay" json:"settle_delay"`

	// BatchSize is documents reindexed per batch during repair.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// PurgeAfter is how long soft-deleted documents are retained
	// before a scan hard-deletes them, e.g. "168h".
	PurgeAfter string `yaml:"purge_after" json:"purge_after"`
}

// WatcherConfig configures the drop folder watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DebounceWindow coalesces bursts of file events, e.g. "200ms".
	DebounceWindow string `yaml:"debounce_window" json:"debounce_window"`

	// Extensions restricts imports, e.g. [".md", ".txt"]. Empty means
	// all supported types.
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Search: SearchConfig{
			VectorWeight:    0.7,
			KeywordWeight:   0.3,
			RRFConstant:     60,
			OverFetchFactor: 3,
			MaxResults:      10,
			SideTimeout:     "2s",
			Debounce:        "150ms",
		},
		Chunking: ChunkingConfig{
			TargetChars:  800,
			OverlapChars: 120,
			MaxChars:     1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  1000,
		},
		Scanner: ScannerConfig{
			Interval:    "5m",
			SettleDelay: "2s",
			BatchSize:   8,
			PurgeAfter:  "168h",
		},
		Watcher: WatcherConfig{
			Enabled:        false,
			DebounceWindow: "200ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".clipstash")
	}
	return filepath.Join(home, ".clipstash")
}

// UserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/clipstash/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/clipstash/config.yaml (default)
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clipstash", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "clipstash", "config.yaml")
	}
	return filepath.Join(home, ".config", "clipstash", "config.yaml")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. The YAML file at path (or the user config when path is empty;
//     a missing file is fine)
//  3. Environment variables (CLIPSTASH_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if path == "" {
		path = UserConfigPath()
	}

	if err := cfg.loadYAML(path, explicit); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file. A missing
// file is an error only when the path was given explicitly.
func (c *Config) loadYAML(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return clierrors.New(clierrors.ErrCodeConfigNotFound,
			fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return clierrors.New(clierrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.DropFolder != "" {
		c.Paths.DropFolder = other.Paths.DropFolder
	}

	// Zero is not a practical weight, so only non-zero values merge.
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.OverFetchFactor != 0 {
		c.Search.OverFetchFactor = other.Search.OverFetchFactor
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.SideTimeout != "" {
		c.Search.SideTimeout = other.Search.SideTimeout
	}
	if other.Search.Debounce != "" {
		c.Search.Debounce = other.Search.Debounce
	}

	if other.Chunking.TargetChars != 0 {
		c.Chunking.TargetChars = other.Chunking.TargetChars
	}
	if other.Chunking.OverlapChars != 0 {
		c.Chunking.OverlapChars = other.Chunking.OverlapChars
	}
	if other.Chunking.MaxChars != 0 {
		c.Chunking.MaxChars = other.Chunking.MaxChars
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Scanner.Interval != "" {
		c.Scanner.Interval = other.Scanner.Interval
	}
	if other.Scanner.SettleDelay != "" {
		c.Scanner.SettleDelay = other.Scanner.SettleDelay
	}
	if other.Scanner.BatchSize != 0 {
		c.Scanner.BatchSize = other.Scanner.BatchSize
	}
	if other.Scanner.PurgeAfter != "" {
		c.Scanner.PurgeAfter = other.Scanner.PurgeAfter
	}

	if other.Watcher.Enabled {
		c.Watcher.Enabled = true
	}
	if other.Watcher.DebounceWindow != "" {
		c.Watcher.DebounceWindow = other.Watcher.DebounceWindow
	}
	if len(other.Watcher.Extensions) > 0 {
		c.Watcher.Extensions = other.Watcher.Extensions
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CLIPSTASH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLIPSTASH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("CLIPSTASH_DROP_FOLDER"); v != "" {
		c.Paths.DropFolder = v
	}

	if v := os.Getenv("CLIPSTASH_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("CLIPSTASH_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("CLIPSTASH_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CLIPSTASH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}

	if v := os.Getenv("CLIPSTASH_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CLIPSTASH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CLIPSTASH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv("CLIPSTASH_SCAN_INTERVAL"); v != "" {
		c.Scanner.Interval = v
	}

	if v := os.Getenv("CLIPSTASH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CLIPSTASH_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return invalid(fmt.Sprintf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight))
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return invalid(fmt.Sprintf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight))
	}
	sum := c.Search.VectorWeight + c.Search.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return invalid(fmt.Sprintf("vector_weight + keyword_weight must equal 1.0, got %.2f", sum))
	}
	if c.Search.RRFConstant <= 0 {
		return invalid(fmt.Sprintf("rrf_constant must be positive, got %d", c.Search.RRFConstant))
	}
	if c.Search.MaxResults <= 0 {
		return invalid(fmt.Sprintf("max_results must be positive, got %d", c.Search.MaxResults))
	}

	if c.Chunking.OverlapChars >= c.Chunking.TargetChars {
		return invalid(fmt.Sprintf("overlap_chars (%d) must be smaller than target_chars (%d)",
			c.Chunking.OverlapChars, c.Chunking.TargetChars))
	}
	if c.Chunking.MaxChars < c.Chunking.TargetChars {
		return invalid(fmt.Sprintf("max_chars (%d) must be at least target_chars (%d)",
			c.Chunking.MaxChars, c.Chunking.TargetChars))
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return invalid(fmt.Sprintf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider))
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"search.side_timeout", c.Search.SideTimeout},
		{"search.debounce", c.Search.Debounce},
		{"scanner.interval", c.Scanner.Interval},
		{"scanner.settle_delay", c.Scanner.SettleDelay},
		{"scanner.purge_after", c.Scanner.PurgeAfter},
		{"watcher.debounce_window", c.Watcher.DebounceWindow},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return invalid(fmt.Sprintf("%s is not a valid duration: %s", d.name, d.value))
		}
	}

	if c.Server.Transport != "" && strings.ToLower(c.Server.Transport) != "stdio" {
		return invalid(fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport))
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel))
	}

	return nil
}

func invalid(message string) error {
	return clierrors.New(clierrors.ErrCodeConfigInvalid, message, nil)
}

// Duration parses a duration field, returning fallback for empty or
// unparseable values. Validate has already rejected bad values on the
// Load path.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
