// Package ragstore is a document ingestion and vector retrieval
// engine. Documents fetched from the web or local files are split
// into overlapping chunks, embedded, and stored in SQLite; queries
// are answered with the most similar chunks via sqlite-vec.
package ragstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/junhanzh/ragstore/embed"
	"github.com/junhanzh/ragstore/fetch"
	"github.com/junhanzh/ragstore/ingest"
	"github.com/junhanzh/ragstore/retrieval"
	"github.com/junhanzh/ragstore/store"
)

// Engine is the main entry point for the ragstore engine.
type Engine interface {
	// IngestURL fetches a web page and indexes its extracted text.
	IngestURL(ctx context.Context, url string, opts ...IngestOption) (*ingest.Result, error)

	// IngestFile extracts text from a local file (txt, md, pdf, xlsx)
	// and indexes it.
	IngestFile(ctx context.Context, path string) (*ingest.Result, error)

	// IngestContent indexes raw text directly.
	IngestContent(ctx context.Context, source, title, content string) (*ingest.Result, error)

	// Retrieve returns the chunks most similar to the query.
	Retrieve(ctx context.Context, query string, opts ...QueryOption) (*retrieval.Result, error)

	// GetDocument returns one ingested document by ID.
	GetDocument(ctx context.Context, id int64) (*store.Document, error)

	// ListDocuments returns all ingested documents, newest first.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Delete removes a document, its chunks, and their embeddings.
	Delete(ctx context.Context, documentID int64) error

	// Stats returns document, chunk, and embedding counts.
	Stats(ctx context.Context) (*store.Stats, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	skipCache bool
}

// WithoutCache bypasses the page cache and forces a fresh fetch.
func WithoutCache() IngestOption {
	return func(o *ingestOptions) { o.skipCache = true }
}

// QueryOption configures retrieval behavior.
type QueryOption func(*retrieval.Options)

// WithTopK overrides the maximum number of returned chunks.
func WithTopK(k int) QueryOption {
	return func(o *retrieval.Options) { o.TopK = k }
}

// WithMinSimilarity overrides the similarity threshold. A negative
// value disables the threshold so every top-k candidate is returned.
func WithMinSimilarity(min float64) QueryOption {
	return func(o *retrieval.Options) { o.MinSimilarity = min }
}

type engine struct {
	cfg         Config
	store       *store.Store
	embedder    embed.Client
	pipeline    *ingest.Pipeline
	retriever   *retrieval.Engine
	httpFetcher *fetch.HTTPFetcher
	fileFetcher *fetch.FileFetcher
	cache       *fetch.PageCache
}

// New creates a ragstore engine with the given configuration.
func New(cfg Config) (Engine, error) {
	def := DefaultConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = def.Embedding.Dimension
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = def.Embedding.BaseURL
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = def.MinSimilarity
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedder, err := embed.NewOpenAI(embed.Config{
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout.Std(),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	pipeline, err := ingest.New(s, embedder, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating ingest pipeline: %w", err)
	}

	cache, err := fetch.NewPageCache(cfg.resolveCachePath(), cfg.CacheTTL.Std())
	if err != nil {
		// The cache is an optimisation, not a requirement.
		slog.Warn("page cache unavailable, fetching without it", "error", err)
		cache = nil
	}

	return &engine{
		cfg:         cfg,
		store:       s,
		embedder:    embedder,
		pipeline:    pipeline,
		retriever:   retrieval.New(s, embedder),
		httpFetcher: fetch.NewHTTPFetcher(cfg.FetchTimeout.Std()),
		fileFetcher: fetch.NewFileFetcher(),
		cache:       cache,
	}, nil
}

func (e *engine) IngestURL(ctx context.Context, url string, opts ...IngestOption) (*ingest.Result, error) {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var page *fetch.Page
	if e.cache != nil && !o.skipCache {
		if cached, ok := e.cache.Get(url); ok {
			slog.Debug("page cache hit", "url", url)
			page = cached
		}
	}

	if page == nil {
		fetched, err := e.httpFetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		page = fetched
		if e.cache != nil {
			if err := e.cache.Put(url, page); err != nil {
				slog.Warn("caching page failed", "url", url, "error", err)
			}
		}
	}

	return e.pipeline.Ingest(ctx, page.Source, page.Title, page.Content)
}

func (e *engine) IngestFile(ctx context.Context, path string) (*ingest.Result, error) {
	page, err := e.fileFetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.pipeline.Ingest(ctx, page.Source, page.Title, page.Content)
}

func (e *engine) IngestContent(ctx context.Context, source, title, content string) (*ingest.Result, error) {
	return e.pipeline.Ingest(ctx, source, title, content)
}

func (e *engine) Retrieve(ctx context.Context, query string, opts ...QueryOption) (*retrieval.Result, error) {
	options := retrieval.Options{TopK: e.cfg.TopK, MinSimilarity: e.cfg.MinSimilarity}
	for _, opt := range opts {
		opt(&options)
	}
	return e.retriever.Retrieve(ctx, query, options)
}

func (e *engine) GetDocument(ctx context.Context, id int64) (*store.Document, error) {
	return e.store.GetDocument(ctx, id)
}

func (e *engine) ListDocuments(ctx context.Context) ([]store.Document, error) {
	return e.store.ListDocuments(ctx)
}

func (e *engine) Delete(ctx context.Context, documentID int64) error {
	return e.store.DeleteDocument(ctx, documentID)
}

func (e *engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

func (e *engine) Store() *store.Store {
	return e.store
}

func (e *engine) Close() error {
	if e.cache != nil {
		e.cache.Close()
	}
	return e.store.Close()
}
