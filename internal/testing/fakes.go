package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/playgen/internal/models"
)

// NewTrack returns a track that passes validation.
func NewTrack(id, name, artist string) models.Track {
	return models.Track{
		ID:         id,
		Name:       name,
		Artists:    []models.Artist{{ID: "artist-" + artist, Name: artist}},
		URI:        "spotify:track:" + id,
		DurationMS: 200_000,
		IsPlayable: true,
	}
}

// TrackID pads key with 'x' to a well-formed 22 character catalog id.
func TrackID(key string) string {
	if len(key) >= 22 {
		return key[:22]
	}
	return key + strings.Repeat("x", 22-len(key))
}

// FakeCatalog is an in-memory catalog keyed by exact query strings.
type FakeCatalog struct {
	mu sync.Mutex

	Results    map[string][]models.Track     // search query → results
	Errors     map[string]error              // search query → error returned on every call
	Delays     map[string]time.Duration      // search query → latency, cut short by ctx
	Tracks     map[string]*models.Track      // id → track for SeveralTracks
	TopByRange map[models.TimeRange][]string // listening history → top artist names
	CreateErr  error
	AddErr     error

	queries      []string
	interrupted  int
	lookups      [][]string
	created      []*models.Playlist
	added        map[string][]string
	addCalls     int
	historyCalls int
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Results:    make(map[string][]models.Track),
		Errors:     make(map[string]error),
		Delays:     make(map[string]time.Duration),
		Tracks:     make(map[string]*models.Track),
		TopByRange: make(map[models.TimeRange][]string),
		added:      make(map[string][]string),
	}
}

func (f *FakeCatalog) Search(ctx context.Context, query string) ([]models.Track, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	delay := f.Delays[query]
	err := f.Errors[query]
	results := f.Results[query]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.interrupted++
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]models.Track(nil), results...), nil
}

func (f *FakeCatalog) SeveralTracks(ctx context.Context, ids []string) ([]*models.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups = append(f.lookups, append([]string(nil), ids...))
	out := make([]*models.Track, len(ids))
	for i, id := range ids {
		out[i] = f.Tracks[id]
	}
	return out, nil
}

func (f *FakeCatalog) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	id := fmt.Sprintf("pl%d", len(f.created)+1)
	pl := &models.Playlist{
		ID:          id,
		Name:        name,
		Description: description,
		Public:      public,
		URI:         "spotify:playlist:" + id,
	}
	f.created = append(f.created, pl)
	return pl, nil
}

func (f *FakeCatalog) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addCalls++
	if f.AddErr != nil {
		return f.AddErr
	}
	f.added[playlistID] = append(f.added[playlistID], uris...)
	return nil
}

// TopArtists returns the listening history of timeRange, cut to limit.
func (f *FakeCatalog) TopArtists(ctx context.Context, timeRange models.TimeRange, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyCalls++
	names := append([]string(nil), f.TopByRange[timeRange]...)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, ctx.Err()
}

// HistoryCalls returns how many times the listening history was read.
func (f *FakeCatalog) HistoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

// Queries returns every search query in call order.
func (f *FakeCatalog) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Interrupted returns how many delayed searches were cut short by their context.
func (f *FakeCatalog) Interrupted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupted
}

// Lookups returns the id batches passed to SeveralTracks.
func (f *FakeCatalog) Lookups() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.lookups...)
}

// Created returns the playlists created so far.
func (f *FakeCatalog) Created() []*models.Playlist {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Playlist(nil), f.created...)
}

// Added returns the uris added to a playlist.
func (f *FakeCatalog) Added(playlistID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added[playlistID]...)
}

// AddCalls returns how many times AddTracks was called.
func (f *FakeCatalog) AddCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls
}

// FakeArtistIndex is an in-memory similarity and tag source. Missing keys yield empty results.
type FakeArtistIndex struct {
	mu sync.Mutex

	SimilarByArtist map[string][]string
	SearchResults   map[string][]string
	Known           map[string]bool
	TagsByArtist    map[string][]string
	ArtistsByTag    map[string][]string
	TracksByArtist  map[string][]string
	Tags            []string
	Err             error // returned by every call when set

	calls []string
}

func NewFakeArtistIndex() *FakeArtistIndex {
	return &FakeArtistIndex{
		SimilarByArtist: make(map[string][]string),
		SearchResults:   make(map[string][]string),
		Known:           make(map[string]bool),
		TagsByArtist:    make(map[string][]string),
		ArtistsByTag:    make(map[string][]string),
		TracksByArtist:  make(map[string][]string),
	}
}

func (f *FakeArtistIndex) record(method, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+":"+arg)
	return f.Err
}

func (f *FakeArtistIndex) get(m map[string][]string, key string, limit int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := append([]string(nil), m[key]...)
	if limit > 0 && len(v) > limit {
		v = v[:limit]
	}
	return v
}

func (f *FakeArtistIndex) SimilarArtists(ctx context.Context, artist string, limit int) ([]string, error) {
	if err := f.record("similar", artist); err != nil {
		return nil, err
	}
	return f.get(f.SimilarByArtist, artist, limit), ctx.Err()
}

func (f *FakeArtistIndex) SearchArtists(ctx context.Context, name string) ([]string, error) {
	if err := f.record("search", name); err != nil {
		return nil, err
	}
	return f.get(f.SearchResults, name, 0), ctx.Err()
}

func (f *FakeArtistIndex) ArtistExists(ctx context.Context, name string) (bool, error) {
	if err := f.record("exists", name); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Known[name], ctx.Err()
}

func (f *FakeArtistIndex) ArtistTopTags(ctx context.Context, artist string, limit int) ([]string, error) {
	if err := f.record("tags", artist); err != nil {
		return nil, err
	}
	return f.get(f.TagsByArtist, artist, limit), ctx.Err()
}

func (f *FakeArtistIndex) TagTopArtists(ctx context.Context, tag string, limit int) ([]string, error) {
	if err := f.record("tag-artists", tag); err != nil {
		return nil, err
	}
	return f.get(f.ArtistsByTag, tag, limit), ctx.Err()
}

func (f *FakeArtistIndex) ArtistTopTracks(ctx context.Context, artist string, limit int) ([]string, error) {
	if err := f.record("top-tracks", artist); err != nil {
		return nil, err
	}
	return f.get(f.TracksByArtist, artist, limit), ctx.Err()
}

func (f *FakeArtistIndex) TopTags(ctx context.Context) ([]string, error) {
	if err := f.record("top-tags", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Tags...), ctx.Err()
}

// Calls returns "method:argument" for every call in order.
func (f *FakeArtistIndex) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
