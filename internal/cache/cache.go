// package cache memoizes resolution results for the lifetime of the process
package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/desertthunder/playgen/internal/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key prefixes. Each kind of entry lives in its own namespace so a mention can never collide with a track id.
const (
	PrefixTrackSearch = "trackSearch:"
	PrefixCatalogID   = "catalogId:"
	PrefixSimilar     = "similar:"
)

const DefaultSize = 4096

// Stats is a snapshot of cache usage.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Tracks  int    `json:"tracks"`
	Similar int    `json:"similar"`
}

// Cache holds positive resolution results in bounded LRU maps. Misses and empty results are never stored,
// so a later call retries the external lookup.
//
// Writes are idempotent: two workers storing the same key leave one equivalent entry.
type Cache struct {
	tracks  *lru.Cache[string, *models.Track]
	similar *lru.Cache[string, *models.SimilarArtists]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New creates a cache holding up to size tracks and size similar-artist sets.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}

	tracks, err := lru.New[string, *models.Track](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create track cache: %w", err)
	}
	similar, err := lru.New[string, *models.SimilarArtists](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create similar artist cache: %w", err)
	}

	return &Cache{tracks: tracks, similar: similar}, nil
}

// SearchResult returns the track a mention previously resolved to. The mention is matched exactly.
func (c *Cache) SearchResult(mention string) (*models.Track, bool) {
	return record(c, c.tracks, PrefixTrackSearch+mention)
}

// StoreSearchResult remembers the resolution of mention, and the track itself under its catalog id.
func (c *Cache) StoreSearchResult(mention string, track *models.Track) {
	if track == nil || track.ID == "" {
		return
	}
	c.tracks.Add(PrefixTrackSearch+mention, track)
	c.tracks.Add(PrefixCatalogID+track.ID, track)
}

// Track returns the details of a catalog id.
func (c *Cache) Track(id string) (*models.Track, bool) {
	return record(c, c.tracks, PrefixCatalogID+id)
}

// StoreTrack remembers a track under its catalog id.
func (c *Cache) StoreTrack(track *models.Track) {
	if track == nil || track.ID == "" {
		return
	}
	c.tracks.Add(PrefixCatalogID+track.ID, track)
}

// Similar returns the similar-artist set computed for artist.
func (c *Cache) Similar(artist string) (*models.SimilarArtists, bool) {
	return record(c, c.similar, PrefixSimilar+artist)
}

// StoreSimilar remembers a non-empty similar-artist set.
func (c *Cache) StoreSimilar(artist string, set *models.SimilarArtists) {
	if set.Empty() {
		return
	}
	c.similar.Add(PrefixSimilar+artist, set)
}

// Stats returns hit and miss counters and the current entry counts.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Tracks:  c.tracks.Len(),
		Similar: c.similar.Len(),
	}
}

func record[V any](c *Cache, m *lru.Cache[string, V], key string) (V, bool) {
	v, ok := m.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}
