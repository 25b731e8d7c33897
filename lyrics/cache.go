package lyrics

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Fetcher retrieves the raw lyric text behind a lyric locator.
type Fetcher interface {
	FetchLyrics(ctx context.Context, url string) (string, error)
}

// Entry is a cached lyric resource.
type Entry struct {
	Raw      string
	Timeline Timeline
}

// Cache keeps parsed lyrics per lyric locator for the life of the process.
// Entries are never evicted. Concurrent loads of one locator share a single
// fetch.
type Cache struct {
	fetcher Fetcher

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]chan struct{} // closed when the fetch finishes

	wg conc.WaitGroup
}

func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher:  fetcher,
		entries:  make(map[string]Entry),
		inflight: make(map[string]chan struct{}),
	}
}

// Get returns the cached entry for url.
func (c *Cache) Get(url string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return e, ok
}

// Load returns the entry for url, fetching and parsing it on a miss. A
// fetch already running for url is waited for instead of repeated.
// Failed fetches are not cached.
func (c *Cache) Load(ctx context.Context, url string) (Entry, error) {
	for {
		c.mu.Lock()
		if e, ok := c.entries[url]; ok {
			c.mu.Unlock()
			return e, nil
		}
		done, busy := c.inflight[url]
		if !busy {
			done = make(chan struct{})
			c.inflight[url] = done
			c.mu.Unlock()
			return c.fetch(ctx, url, done)
		}
		c.mu.Unlock()

		// the other fetch may fail, in which case the next pass fetches
		select {
		case <-done:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

func (c *Cache) fetch(ctx context.Context, url string, done chan struct{}) (Entry, error) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, url)
		c.mu.Unlock()
		close(done)
	}()

	raw, err := c.fetcher.FetchLyrics(ctx, url)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Raw: raw, Timeline: Parse(raw)}
	c.mu.Lock()
	c.entries[url] = e
	c.mu.Unlock()
	return e, nil
}

// Preload warms the cache for url in the background. Failures are dropped.
func (c *Cache) Preload(ctx context.Context, url string) {
	if url == "" {
		return
	}
	c.mu.Lock()
	_, cached := c.entries[url]
	_, busy := c.inflight[url]
	if cached || busy {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.inflight[url] = done
	c.mu.Unlock()

	c.wg.Go(func() {
		if _, err := c.fetch(ctx, url, done); err != nil {
			log.Debug().Err(err).Str("url", url).Msg("lyric preload failed")
		}
	})
}

// Wait blocks until all pending preloads have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
