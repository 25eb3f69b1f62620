// Package retrieval answers natural-language queries with the most
// similar stored chunks, formatted for use as model context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/junhanzh/ragstore/embed"
	"github.com/junhanzh/ragstore/store"
)

// ErrEmptyQuery is returned when the query is blank after trimming.
var ErrEmptyQuery = errors.New("retrieval: empty query")

// Defaults applied when an option is zero.
const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.3
)

// Options control a single retrieval.
type Options struct {
	// TopK is the maximum number of chunks to return.
	TopK int `json:"top_k"`
	// MinSimilarity drops results whose cosine similarity falls below
	// this threshold. It filters the top-k candidates, it does not
	// widen the search. Zero selects DefaultMinSimilarity; a negative
	// value disables the threshold entirely.
	MinSimilarity float64 `json:"min_similarity"`
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = DefaultMinSimilarity
	}
	return o
}

// Result holds the retrieved chunks for a query. Indexed is false
// when the store holds no embeddings at all, which distinguishes an
// empty corpus from a query with no sufficiently similar content.
type Result struct {
	Query   string               `json:"query"`
	Chunks  []store.SearchResult `json:"chunks"`
	Indexed bool                 `json:"indexed"`
}

// Context renders the result as a context block for a language model.
// Each chunk appears with its title, content, similarity, and source.
func (r *Result) Context() string {
	if !r.Indexed {
		return "No documents have been indexed yet."
	}
	if len(r.Chunks) == 0 {
		return "No relevant documents found."
	}

	var b strings.Builder
	for i, c := range r.Chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d]\n", i+1)
		if c.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", c.Title)
		}
		fmt.Fprintf(&b, "Content: %s\n", c.Content)
		fmt.Fprintf(&b, "Similarity: %.4f\n", c.Similarity)
		fmt.Fprintf(&b, "Source: %s", c.Source)
	}
	return b.String()
}

// Engine embeds queries and searches the vector index.
type Engine struct {
	store    *store.Store
	embedder embed.Client
}

// New builds a retrieval engine over the given store and embedder.
func New(s *store.Store, embedder embed.Client) *Engine {
	return &Engine{store: s, embedder: embedder}
}

// Retrieve embeds the query and returns the most similar chunks.
// A store with no embeddings yields an empty, non-error result with
// Indexed set to false.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	opts = opts.withDefaults()

	indexed, err := e.store.EmbeddedChunkCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking index: %w", err)
	}
	if indexed == 0 {
		slog.Debug("retrieval against empty index", "query", query)
		return &Result{Query: query, Indexed: false}, nil
	}

	vec, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := e.store.SimilaritySearch(ctx, vec, opts.TopK, opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	slog.Debug("retrieval complete", "query", query, "results", len(chunks),
		"top_k", opts.TopK, "min_similarity", opts.MinSimilarity)
	return &Result{Query: query, Chunks: chunks, Indexed: true}, nil
}
