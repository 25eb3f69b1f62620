// Package embed turns text into fixed-dimension vectors via an
// external embedding provider.
package embed

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput is returned when a text to embed is empty or
	// whitespace-only. Rejected before any network I/O.
	ErrEmptyInput = errors.New("embed: empty input text")

	// ErrService is returned for provider failures: timeouts,
	// authentication errors, rate limiting that outlasts retries, and
	// malformed responses. Calls failing with ErrService are never
	// partially applied and are safe to retry whole.
	ErrService = errors.New("embed: embedding service error")

	// ErrDimensionMismatch is returned when the provider produces
	// vectors of a different length than the configured dimension.
	// This is a configuration error, detected on first use.
	ErrDimensionMismatch = errors.New("embed: embedding dimension mismatch")
)

// Client produces embeddings of a fixed dimension.
type Client interface {
	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany embeds a batch of texts, returning vectors in input
	// order. On any provider failure the whole call fails; no partial
	// results are returned.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector length D.
	Dimension() int
}
