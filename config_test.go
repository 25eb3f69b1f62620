package ragstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Errorf("chunking defaults = %d/%d, want 500/100", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 5 {
		t.Errorf("top_k default = %d, want 5", cfg.TopK)
	}
	if cfg.MinSimilarity != 0.3 {
		t.Errorf("min_similarity default = %f, want 0.3", cfg.MinSimilarity)
	}
	if cfg.Embedding.Dimension != 1024 {
		t.Errorf("embedding dimension default = %d, want 1024", cfg.Embedding.Dimension)
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/custom/path.db"}
	if got := cfg.resolveDBPath(); got != "/custom/path.db" {
		t.Errorf("explicit path = %q", got)
	}

	cfg = Config{DBName: "mydb", StorageDir: "local"}
	if got := cfg.resolveDBPath(); got != "mydb.db" {
		t.Errorf("local path = %q, want mydb.db", got)
	}

	cfg = Config{StorageDir: "home"}
	got := cfg.resolveDBPath()
	if !strings.Contains(got, ".ragstore") || !strings.HasSuffix(got, "ragstore.db") {
		t.Errorf("home path = %q", got)
	}
}

func TestResolveCachePath(t *testing.T) {
	cfg := Config{DBPath: "/data/rag.db"}
	if got := cfg.resolveCachePath(); got != "/data/pagecache.db" {
		t.Errorf("cache path = %q, want /data/pagecache.db", got)
	}

	cfg.CachePath = "/elsewhere/cache.db"
	if got := cfg.resolveCachePath(); got != "/elsewhere/cache.db" {
		t.Errorf("explicit cache path = %q", got)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
db_path: /tmp/test.db
chunk_size: 300
embedding:
  model: text-embedding-3-small
  dimension: 512
fetch_timeout: 5s
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.ChunkSize != 300 {
		t.Errorf("chunk_size = %d, want 300", cfg.ChunkSize)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimension != 512 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.FetchTimeout.Std() != 5*time.Second {
		t.Errorf("fetch_timeout = %v, want 5s", cfg.FetchTimeout.Std())
	}
	// Untouched fields keep their defaults.
	if cfg.ChunkOverlap != 100 {
		t.Errorf("chunk_overlap = %d, want default 100", cfg.ChunkOverlap)
	}
	if cfg.TopK != 5 {
		t.Errorf("top_k = %d, want default 5", cfg.TopK)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
