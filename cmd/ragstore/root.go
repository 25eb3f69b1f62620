// Command ragstore is the CLI for the document ingestion and vector
// retrieval engine.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/junhanzh/ragstore"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
	cfg     ragstore.Config
)

var rootCmd = &cobra.Command{
	Use:   "ragstore",
	Short: "Document ingestion and vector retrieval engine",
	Long: `ragstore ingests documents from URLs and local files, splits them
into overlapping chunks, embeds the chunks, and stores everything in
SQLite. Queries return the most similar chunks ranked by cosine
similarity.

Example usage:
  ragstore ingest https://example.com/article   # Ingest a web page
  ragstore ingest ./docs --include "**/*.md"    # Ingest a directory
  ragstore query "how does the scheduler work"  # Search the index`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environments set variables directly.
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))

		cfg = ragstore.DefaultConfig()
		if cfgFile != "" {
			loaded, err := ragstore.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loaded
		}

		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if v := os.Getenv("RAGSTORE_DB_PATH"); v != "" && cfg.DBPath == "" {
			cfg.DBPath = v
		}
		if v := os.Getenv("RAGSTORE_EMBED_BASE_URL"); v != "" {
			cfg.Embedding.BaseURL = v
		}
		if v := os.Getenv("RAGSTORE_EMBED_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
		if v := os.Getenv("RAGSTORE_EMBED_MODEL"); v != "" {
			cfg.Embedding.Model = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}

		return nil
	},
}

func newEngine() (ragstore.Engine, error) {
	return ragstore.New(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.ragstore/ragstore.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}
