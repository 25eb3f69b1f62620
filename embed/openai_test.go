package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider serves the OpenAI embeddings wire format, returning
// vectors of the requested dimension filled with the input index.
func fakeProvider(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		// Return data in reverse order to exercise index re-assembly.
		data := make([]datum, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i)
			}
			data = append(data, datum{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func newTestClient(t *testing.T, baseURL string, dim int) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAI(Config{
		Model:     "test-embed",
		BaseURL:   baseURL,
		Dimension: dim,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return c
}

func TestEmbedManyOrderAndDimension(t *testing.T) {
	srv := fakeProvider(t, 4)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	vecs, err := c.EmbedMany(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 4 {
			t.Errorf("vector %d has dimension %d, want 4", i, len(v))
		}
		if v[0] != float32(i) {
			t.Errorf("vector %d = %v, out of order", i, v[0])
		}
	}
}

func TestEmbedOneEmptyInput(t *testing.T) {
	srv := fakeProvider(t, 4)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := c.EmbedOne(context.Background(), text); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("EmbedOne(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := fakeProvider(t, 8) // provider returns 8-dim vectors
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4) // client configured for 4
	_, err := c.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedServiceErrorNotRetriedOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	_, err := c.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, ErrService) {
		t.Fatalf("error = %v, want ErrService", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("auth failure retried %d times, want a single attempt", n)
	}
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		vec := make([]float32, 4)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec, "index": 0}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	vecs, err := c.EmbedMany(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("EmbedMany after transient failure: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 4 {
		t.Fatalf("unexpected result: %v", vecs)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestEmbedRetryAfterReplacesBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		vec := make([]float32, 4)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec, "index": 0}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4)
	start := time.Now()
	vecs, err := c.EmbedMany(context.Background(), []string{"hello"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("EmbedMany after rate limit: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vecs))
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
	// The Retry-After hint stands in for the backoff. Sleeping both
	// would take at least two seconds here.
	if elapsed >= 1700*time.Millisecond {
		t.Errorf("retry took %v, want a single ~1s wait", elapsed)
	}
}

func TestEmbedBatchesLargeInput(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": make([]float32, 4), "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{
		Model:     "test-embed",
		BaseURL:   srv.URL,
		Dimension: 4,
		BatchSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := c.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 25 {
		t.Fatalf("got %d vectors, want 25", len(vecs))
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 provider calls for 25 inputs at batch size 10, got %d", n)
	}
}
