// Package ingest turns raw document content into stored, embedded
// chunks. Ingestion is idempotent: documents are identified by a
// SHA-256 content hash, and re-submitting known content is a no-op
// unless a previous run stopped before its chunks were written.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/junhanzh/ragstore/chunker"
	"github.com/junhanzh/ragstore/embed"
	"github.com/junhanzh/ragstore/store"
)

// Status reports what the pipeline did with a submitted document.
type Status string

const (
	// StatusIngested means the document was new and fully indexed.
	StatusIngested Status = "ingested"
	// StatusSkipped means the content hash matched a fully indexed
	// document, so nothing was written.
	StatusSkipped Status = "skipped"
	// StatusResumed means the document row existed but had no chunks
	// (a previous run stopped partway), and indexing was completed.
	StatusResumed Status = "resumed"
	// StatusEmpty means the content produced no chunks; the document
	// row is stored but nothing was indexed.
	StatusEmpty Status = "empty"
)

// Result describes the outcome of one ingestion.
type Result struct {
	Document *store.Document `json:"document,omitempty"`
	Chunks   int             `json:"chunks"`
	Status   Status          `json:"status"`
}

// Pipeline wires the splitter, embedder, and store into the
// hash-dedupe-chunk-embed-persist sequence.
type Pipeline struct {
	store    *store.Store
	embedder embed.Client
	splitter *chunker.Splitter
}

// New builds a pipeline. chunkSize and chunkOverlap configure the
// text splitter; see chunker.New for their constraints.
func New(s *store.Store, embedder embed.Client, chunkSize, chunkOverlap int) (*Pipeline, error) {
	splitter, err := chunker.New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Pipeline{store: s, embedder: embedder, splitter: splitter}, nil
}

// Ingest processes one document. Title may be empty. The content hash
// decides identity: matching content that is already chunked is
// skipped, matching content with zero chunks is resumed, and new
// content is inserted and indexed.
func (p *Pipeline) Ingest(ctx context.Context, source, title, content string) (*Result, error) {
	hash := ContentHash(content)

	doc, err := p.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up content hash: %w", err)
	}

	if doc != nil {
		return p.resumeOrSkip(ctx, doc)
	}

	doc, err = p.store.InsertDocument(ctx, source, title, content, hash)
	if errors.Is(err, store.ErrDuplicateContentHash) {
		// Another writer inserted the same content between our lookup
		// and insert. Their row is authoritative.
		doc, err = p.store.FindByHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("re-fetching after duplicate insert: %w", err)
		}
		if doc == nil {
			return nil, fmt.Errorf("document with hash %s vanished after duplicate insert", hash)
		}
		return p.resumeOrSkip(ctx, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	n, err := p.index(ctx, doc)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		slog.Debug("document has no indexable content", "id", doc.ID, "source", source)
		return &Result{Document: doc, Status: StatusEmpty}, nil
	}

	slog.Info("document ingested", "id", doc.ID, "source", source, "chunks", n)
	return &Result{Document: doc, Chunks: n, Status: StatusIngested}, nil
}

// resumeOrSkip decides what to do with an existing document: if its
// chunks are already stored the work is done, otherwise a previous
// run stopped after the document insert and indexing is completed now.
func (p *Pipeline) resumeOrSkip(ctx context.Context, doc *store.Document) (*Result, error) {
	n, err := p.store.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if n > 0 {
		slog.Debug("document already indexed", "id", doc.ID, "chunks", n)
		return &Result{Document: doc, Chunks: n, Status: StatusSkipped}, nil
	}

	n, err = p.index(ctx, doc)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{Document: doc, Status: StatusEmpty}, nil
	}

	slog.Info("resumed partial ingestion", "id", doc.ID, "chunks", n)
	return &Result{Document: doc, Chunks: n, Status: StatusResumed}, nil
}

// index splits the document, embeds every chunk, and persists the
// whole batch atomically.
func (p *Pipeline) index(ctx context.Context, doc *store.Document) (int, error) {
	pieces := p.splitter.Split(doc.Content)
	if len(pieces) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.EmbedMany(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks for document %d: %w", len(pieces), doc.ID, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	inputs := make([]store.ChunkInput, len(pieces))
	for i, text := range pieces {
		inputs[i] = store.ChunkInput{Content: text, Embedding: vectors[i]}
	}

	if err := p.store.InsertChunks(ctx, doc.ID, inputs); err != nil {
		// Two resuming writers can both observe zero chunks and race to
		// index. The batch is atomic, so if chunks exist now the other
		// writer won and this document is fully indexed.
		if n, countErr := p.store.CountChunks(ctx, doc.ID); countErr == nil && n > 0 {
			slog.Debug("chunks stored by concurrent writer", "id", doc.ID, "chunks", n)
			return n, nil
		}
		return 0, fmt.Errorf("storing chunks for document %d: %w", doc.ID, err)
	}
	return len(inputs), nil
}
