package fetch

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketPages = []byte("pages")

// DefaultCacheTTL is how long a cached page stays fresh.
const DefaultCacheTTL = 24 * time.Hour

// PageCache stores fetched pages in a local bbolt database so repeat
// crawls of the same URL skip the network.
type PageCache struct {
	db  *bbolt.DB
	ttl time.Duration
}

type cachedPage struct {
	Page      Page  `json:"page"`
	FetchedAt int64 `json:"fetched_at"`
}

// NewPageCache opens (or creates) the cache database at path. A zero
// ttl defaults to DefaultCacheTTL.
func NewPageCache(path string, ttl time.Duration) (*PageCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening page cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPages)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}
	return &PageCache{db: db, ttl: ttl}, nil
}

// Close closes the cache database.
func (c *PageCache) Close() error {
	return c.db.Close()
}

// Get returns the cached page for url, or (nil, false) when the entry
// is missing or stale.
func (c *PageCache) Get(url string) (*Page, bool) {
	var entry cachedPage
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPages).Get([]byte(url))
		if data == nil {
			return fmt.Errorf("miss")
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, false
	}
	if time.Since(time.Unix(entry.FetchedAt, 0)) > c.ttl {
		return nil, false
	}
	return &entry.Page, true
}

// Put stores a fetched page under its URL.
func (c *PageCache) Put(url string, page *Page) error {
	entry := cachedPage{Page: *page, FetchedAt: time.Now().Unix()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPages).Put([]byte(url), data)
	})
}
