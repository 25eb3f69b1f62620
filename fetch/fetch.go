// Package fetch acquires document content from URLs and local files
// and normalises it into plain text ready for ingestion.
package fetch

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned for file extensions no extractor
// handles.
var ErrUnsupportedFormat = errors.New("fetch: unsupported format")

// ErrFetch marks failures reaching or reading the remote target, as
// opposed to failures in the caller's input.
var ErrFetch = errors.New("fetch: request failed")

// Page is the normalised output of any fetcher: a source identifier,
// a human-readable title, and plain-text content.
type Page struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Fetcher turns a target (URL or file path) into a Page.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Page, error)
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*FileFetcher)(nil)
)
