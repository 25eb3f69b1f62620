package ragstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like
// "30s" or "24h" in YAML and JSON config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration: %s", data)
	}
	*d = Duration(n)
	return nil
}

// Config holds all configuration for the ragstore engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.ragstore/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "ragstore".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.ragstore/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Embedding provider
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`

	// Chunking
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Retrieval defaults
	TopK          int     `json:"top_k" yaml:"top_k"`
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`

	// Fetching
	FetchTimeout Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
	CachePath    string   `json:"cache_path" yaml:"cache_path"`
	CacheTTL     Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// EmbeddingConfig configures the embedding provider endpoint.
type EmbeddingConfig struct {
	Model     string   `json:"model" yaml:"model"`
	BaseURL   string   `json:"base_url" yaml:"base_url"`
	APIKey    string   `json:"api_key" yaml:"api_key"`
	Dimension int      `json:"dimension" yaml:"dimension"`
	BatchSize int      `json:"batch_size" yaml:"batch_size"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
// Database is stored in ~/.ragstore/ragstore.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "ragstore",
		StorageDir: "home",
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-large",
			BaseURL:   "https://api.openai.com/v1",
			Dimension: 1024,
			BatchSize: 100,
			Timeout:   Duration(60 * time.Second),
		},
		ChunkSize:     500,
		ChunkOverlap:  100,
		TopK:          5,
		MinSimilarity: 0.3,
		FetchTimeout:  Duration(10 * time.Second),
		CacheTTL:      Duration(24 * time.Hour),
	}
}

// LoadConfig reads a YAML config file and overlays it on the
// defaults. Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "ragstore"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".ragstore", name+".db")
	}
}

// resolveCachePath computes the page cache path, defaulting to a
// sibling of the database file.
func (c *Config) resolveCachePath() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(filepath.Dir(c.resolveDBPath()), "pagecache.db")
}
