//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestDoc(t *testing.T, s *Store, hash string) *Document {
	t.Helper()
	doc, err := s.InsertDocument(context.Background(),
		"https://example.com/"+hash, "Doc "+hash, "body of "+hash, hash)
	if err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	return doc
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestNewRejectsBadDimension(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if _, err := New(dbPath, 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

// ---------------------------------------------------------------------------
// Document CRUD
// ---------------------------------------------------------------------------

func TestInsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := insertTestDoc(t, s, "hash-a")
	if doc.ID == 0 {
		t.Fatal("expected non-zero document id")
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("getting document by id: %v", err)
	}
	if got.ContentHash != "hash-a" {
		t.Errorf("content hash = %q, want %q", got.ContentHash, "hash-a")
	}
	if got.Title != "Doc hash-a" {
		t.Errorf("title = %q, want %q", got.Title, "Doc hash-a")
	}
	if got.CreatedAt == "" {
		t.Error("expected created_at to be populated")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDocumentDuplicateHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestDoc(t, s, "hash-dup")
	_, err := s.InsertDocument(ctx, "other-source", "Other", "other body", "hash-dup")
	if !errors.Is(err, ErrDuplicateContentHash) {
		t.Fatalf("expected ErrDuplicateContentHash, got %v", err)
	}
}

func TestFindByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted := insertTestDoc(t, s, "hash-find")

	got, err := s.FindByHash(ctx, "hash-find")
	if err != nil {
		t.Fatalf("finding by hash: %v", err)
	}
	if got == nil || got.ID != inserted.ID {
		t.Fatalf("expected document %d, got %+v", inserted.ID, got)
	}

	missing, err := s.FindByHash(ctx, "no-such-hash")
	if err != nil {
		t.Fatalf("finding missing hash: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown hash, got %+v", missing)
	}
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestDoc(t, s, "hash-1")
	insertTestDoc(t, s, "hash-2")

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	// Newest first.
	if docs[0].ContentHash != "hash-2" {
		t.Errorf("expected newest document first, got %q", docs[0].ContentHash)
	}
	if docs[0].Content != "" {
		t.Error("listing should omit document content")
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := insertTestDoc(t, s, "hash-del")
	chunks := []ChunkInput{
		{Content: "c0", Embedding: []float32{1, 0, 0, 0}},
		{Content: "c1", Embedding: []float32{0, 1, 0, 0}},
	}
	if err := s.InsertChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("deleting document: %v", err)
	}

	if n, _ := s.CountChunks(ctx, doc.ID); n != 0 {
		t.Errorf("expected 0 chunks after delete, got %d", n)
	}
	if n, _ := s.EmbeddedChunkCount(ctx); n != 0 {
		t.Errorf("expected 0 embeddings after delete, got %d", n)
	}
	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteDocument(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Chunks
// ---------------------------------------------------------------------------

func TestInsertChunksAssignsContiguousIndices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := insertTestDoc(t, s, "hash-chunks")
	inputs := []ChunkInput{
		{Content: "first", Embedding: []float32{1, 0, 0, 0}},
		{Content: "second", Embedding: []float32{0, 1, 0, 0}},
		{Content: "third", Embedding: []float32{0, 0, 1, 0}},
	}
	if err := s.InsertChunks(ctx, doc.ID, inputs); err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}

	chunks, err := s.GetDocumentChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("getting chunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
	if chunks[1].Content != "second" {
		t.Errorf("chunk order not preserved: %q", chunks[1].Content)
	}

	if n, _ := s.EmbeddedChunkCount(ctx); n != 3 {
		t.Errorf("expected 3 embeddings, got %d", n)
	}
}

func TestInsertChunksDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := insertTestDoc(t, s, "hash-dim")
	inputs := []ChunkInput{
		{Content: "ok", Embedding: []float32{1, 0, 0, 0}},
		{Content: "bad", Embedding: []float32{1, 0}},
	}
	err := s.InsertChunks(ctx, doc.ID, inputs)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	// The batch is atomic; nothing should have been written.
	if n, _ := s.CountChunks(ctx, doc.ID); n != 0 {
		t.Errorf("expected 0 chunks after failed batch, got %d", n)
	}
}

func TestInsertChunksEmpty(t *testing.T) {
	s := newTestStore(t)
	doc := insertTestDoc(t, s, "hash-empty")
	if err := s.InsertChunks(context.Background(), doc.ID, nil); err != nil {
		t.Fatalf("inserting empty batch: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Similarity search
// ---------------------------------------------------------------------------

func seedSearchStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	doc := insertTestDoc(t, s, "hash-search")
	inputs := []ChunkInput{
		{Content: "exact match", Embedding: []float32{1, 0, 0, 0}},
		{Content: "close match", Embedding: []float32{0.9, 0.1, 0, 0}},
		{Content: "orthogonal", Embedding: []float32{0, 0, 0, 1}},
	}
	if err := s.InsertChunks(ctx, doc.ID, inputs); err != nil {
		t.Fatalf("seeding chunks: %v", err)
	}
}

func TestSimilaritySearchOrdering(t *testing.T) {
	s := newTestStore(t)
	seedSearchStore(t, s)

	results, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 3, 0)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Content != "exact match" {
		t.Errorf("best result = %q, want exact match", results[0].Content)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("exact match similarity = %f, want ~1.0", results[0].Similarity)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
	if results[0].Source == "" || results[0].Title == "" {
		t.Error("expected document source and title on results")
	}
}

func TestSimilaritySearchMinSimilarityFilter(t *testing.T) {
	s := newTestStore(t)
	seedSearchStore(t, s)

	// The orthogonal vector has cosine similarity 0 to the query and
	// must be dropped by the threshold.
	results, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 3, 0.5)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	for _, r := range results {
		if r.Similarity < 0.5 {
			t.Errorf("result %q below threshold: %f", r.Content, r.Similarity)
		}
	}
}

func TestSimilaritySearchTopK(t *testing.T) {
	s := newTestStore(t)
	seedSearchStore(t, s)

	results, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 1, 0)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result with k=1, got %d", len(results))
	}
}

func TestSimilaritySearchEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	results, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 5, 0.3)
	if err != nil {
		t.Fatalf("searching empty index: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SimilaritySearch(context.Background(), []float32{1, 0}, 5, 0.3)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := insertTestDoc(t, s, "hash-stats")
	inputs := []ChunkInput{
		{Content: "a", Embedding: []float32{1, 0, 0, 0}},
		{Content: "b"}, // no embedding yet
	}
	if err := s.InsertChunks(ctx, doc.ID, inputs); err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("reading stats: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 2 || stats.Embeddings != 1 {
		t.Errorf("stats = %+v, want 1 document, 2 chunks, 1 embedding", stats)
	}
}
