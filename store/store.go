// Package store persists documents, chunks, and chunk embeddings in
// SQLite, with vector similarity search provided by sqlite-vec.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrNotFound is returned when a document ID does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrDuplicateContentHash is returned when an insert loses a race
	// against another writer for the same content hash. Callers should
	// re-fetch via FindByHash and treat the winner's row as
	// authoritative.
	ErrDuplicateContentHash = errors.New("store: duplicate content hash")

	// ErrDimensionMismatch is returned when an embedding's length does
	// not match the store's configured dimension.
	ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	CreatedAt   string `json:"created_at"`
}

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// ChunkInput is a chunk body with its embedding, ready for batch
// insertion. A nil embedding stores the chunk without a vector.
type ChunkInput struct {
	Content   string
	Embedding []float32
}

// SearchResult holds a chunk with its similarity score and owning
// document info.
type SearchResult struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Title      string  `json:"document_title"`
	Source     string  `json:"document_source"`
	Similarity float64 `json:"similarity"`
}

// Stats holds counts of key database objects.
type Stats struct {
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
}

// Store wraps the SQLite database for all ragstore persistence.
// It is safe for concurrent use; atomicity of chunk-batch writes and
// hash uniqueness are enforced by the database, not in-process locks.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("store: embedding dimension must be positive, got %d", embeddingDim)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// FindByHash retrieves the document with the given content hash, or
// nil if no such document exists.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Document, error) {
	doc := &Document{}
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, content, content_hash, created_at
		FROM documents WHERE content_hash = ?
	`, hash).Scan(&doc.ID, &doc.Source, &title, &doc.Content, &doc.ContentHash, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Title = title.String
	return doc, nil
}

// InsertDocument creates a new document row. Returns
// ErrDuplicateContentHash if another writer already inserted a row
// with the same hash.
func (s *Store) InsertDocument(ctx context.Context, source, title, content, hash string) (*Document, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (source, title, content, content_hash)
		VALUES (?, ?, ?, ?)
	`, source, title, content, hash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateContentHash, hash)
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetDocument(ctx, id)
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	doc := &Document{}
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, content, content_hash, created_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Source, &title, &doc.Content, &doc.ContentHash, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	doc.Title = title.String
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time,
// newest first. Content is omitted to keep listings light.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, content_hash, created_at
		FROM documents ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var title sql.NullString
		if err := rows.Scan(&d.ID, &d.Source, &title, &d.ContentHash, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Title = title.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document, its chunks, and their embeddings.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (
				SELECT id FROM chunks WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil
	})
}

// --- Chunk operations ---

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n)
	return n, err
}

// InsertChunks writes a document's full chunk set in one transaction:
// either every chunk (and its embedding) is persisted or none are.
// Chunk indices are assigned contiguously from 0 in input order.
func (s *Store) InsertChunks(ctx context.Context, documentID int64, chunks []ChunkInput) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if c.Embedding != nil && len(c.Embedding) != s.embeddingDim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, store configured for %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.embeddingDim)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, content) VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		vecStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)
		`)
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, documentID, i, c.Content)
			if err != nil {
				return err
			}
			chunkID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if c.Embedding != nil {
				if _, err := vecStmt.ExecContext(ctx, chunkID, serializeFloat32(c.Embedding)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetDocumentChunks returns all chunks for a document in index order.
func (s *Store) GetDocumentChunks(ctx context.Context, documentID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// EmbeddedChunkCount returns the number of chunks that have an
// embedding. Zero means nothing is indexed yet.
func (s *Store) EmbeddedChunkCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_chunks").Scan(&n)
	return n, err
}

// --- Similarity search ---

// SimilaritySearch performs a KNN search over chunk embeddings and
// returns up to topK results ordered by descending cosine similarity.
// Results below minSimilarity are filtered out after the full top-k
// candidate set has been evaluated. An empty index yields an empty
// result, not an error.
func (s *Store) SimilaritySearch(ctx context.Context, queryVec []float32, topK int, minSimilarity float64) ([]SearchResult, error) {
	if len(queryVec) != s.embeddingDim {
		return nil, fmt.Errorf("%w: query has %d dimensions, store configured for %d",
			ErrDimensionMismatch, len(queryVec), s.embeddingDim)
	}
	if topK <= 0 {
		topK = 5
	}

	// sqlite-vec KNN queries fail on an empty virtual table in some
	// versions; short-circuit the empty-index case explicitly.
	n, err := s.EmbeddedChunkCount(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.chunk_id, v.distance,
			c.document_id, c.chunk_index, c.content,
			d.title, d.source
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryVec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		var title sql.NullString
		if err := rows.Scan(&r.ChunkID, &distance,
			&r.DocumentID, &r.ChunkIndex, &r.Content,
			&title, &r.Source); err != nil {
			return nil, err
		}
		r.Title = title.String
		// Cosine distance to similarity: 1.0 is an exact match.
		r.Similarity = 1.0 - distance
		if r.Similarity < minSimilarity {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Diagnostics ---

// Stats returns counts of documents, chunks, and embeddings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
