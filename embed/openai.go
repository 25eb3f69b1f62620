package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config configures an OpenAI-compatible embedding endpoint.
type Config struct {
	Model     string `json:"model" yaml:"model"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	Dimension int    `json:"dimension" yaml:"dimension"`

	// BatchSize caps the number of inputs per provider request.
	// Defaults to 100.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OpenAIClient talks to any /v1/embeddings endpoint that speaks the
// OpenAI wire format (OpenAI, Ollama, LM Studio, vLLM, and most hosted
// providers).
type OpenAIClient struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI returns a client for the configured endpoint. The
// dimension is fixed here and enforced against every response.
func NewOpenAI(cfg Config) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embed: model not specified")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embed: base URL not specified")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embed: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Dimension returns the configured vector length.
func (c *OpenAIClient) Dimension() int {
	return c.cfg.Dimension
}

// EmbedOne embeds a single text.
func (c *OpenAIClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in provider batches, preserving input order.
// Any batch failure fails the whole call.
func (c *OpenAIClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := c.doPost(ctx, embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimension,
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrService, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrService, resp.Error.Message)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrService, len(resp.Data), len(texts))
	}

	// Re-assemble by index so the output order matches the input.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrService, d.Index)
		}
		if len(d.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: provider returned %d dimensions, configured %d",
				ErrDimensionMismatch, len(d.Embedding), c.cfg.Dimension)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrService, i)
		}
	}
	return vecs, nil
}

const (
	maxRetries     = 3
	baseRetryDelay = 1 * time.Second
)

// retryableStatusCode returns true for HTTP status codes that warrant a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *OpenAIClient) doPost(ctx context.Context, reqBody embeddingRequest) ([]byte, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrService, err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/embeddings"

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// A Retry-After hint from the provider replaces the
			// exponential backoff for this attempt, never stacks on it.
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			if retryAfter > 0 {
				delay = retryAfter
				retryAfter = 0
			}
			slog.Warn("embed: retrying request",
				"url", url, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrService, ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrService, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrService, ctx.Err())
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		if !retryableStatusCode(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %v", ErrService, lastErr)
		}

		// Respect Retry-After on rate limits.
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					retryAfter = time.Duration(seconds) * time.Second
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: max retries exceeded: %v", ErrService, lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
