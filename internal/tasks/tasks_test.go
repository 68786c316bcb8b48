package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/resolver"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
	tu "github.com/desertthunder/playgen/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []*models.Run
	err  error
}

func (r *fakeRecorder) Create(run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, run)
	return nil
}

func fastRetry() *retry.Executor {
	return retry.New(retry.Options{NewTimer: func() backoff.Timer { return tu.NewFakeTimer() }})
}

func newEngine(t *testing.T, catalog Catalog, discovery Discovery, opts EngineOpts) *PlaylistEngine {
	t.Helper()
	if opts.Retry == nil {
		opts.Retry = fastRetry()
	}
	if opts.Clock == nil {
		opts.Clock = tu.NewFakeClock(time.Unix(0, 0))
	}
	e, err := NewPlaylistEngine(catalog, discovery, opts)
	require.NoError(t, err)
	return e
}

// seedMentions returns n mentions of the form "Song i - Artist i" and registers a full-string hit for each one
// for which resolvable returns true.
func seedMentions(catalog *tu.FakeCatalog, n int, resolvable func(i int) bool) []string {
	mentions := make([]string, n)
	for i := range n {
		mentions[i] = fmt.Sprintf("Song %d - Artist %d", i, i)
		if resolvable(i) {
			catalog.Results[mentions[i]] = []models.Track{tu.NewTrack(fmt.Sprintf("t%d", i), fmt.Sprintf("Song %d", i), fmt.Sprintf("Artist %d", i))}
		}
	}
	return mentions
}

func TestNewPlaylistEngine(t *testing.T) {
	t.Run("nil catalog", func(t *testing.T) {
		_, err := NewPlaylistEngine(nil, nil, EngineOpts{})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})

	t.Run("defaults", func(t *testing.T) {
		e, err := NewPlaylistEngine(tu.NewFakeCatalog(), nil, EngineOpts{})
		require.NoError(t, err)
		assert.Equal(t, DefaultWorkers, e.workers)
		assert.Equal(t, DefaultTimeout, e.timeout)
		assert.Equal(t, resolver.DefaultPlaylistSize, e.playlistSize)
		assert.Equal(t, DefaultBatchSize, e.batchSize)
		assert.Equal(t, DefaultBatchDelay, e.batchDelay)
		assert.NotNil(t, e.Cache())
		assert.Nil(t, e.artists)
	})

	t.Run("negative batch delay disables the pause", func(t *testing.T) {
		e, err := NewPlaylistEngine(tu.NewFakeCatalog(), nil, EngineOpts{BatchDelay: -1})
		require.NoError(t, err)
		assert.Zero(t, e.batchDelay)
	})
}

func TestRun(t *testing.T) {
	t.Run("forty mentions with ten unresolvable", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 40, func(i int) bool { return i%4 != 3 })
		recorder := &fakeRecorder{}
		e := newEngine(t, catalog, nil, EngineOpts{Recorder: recorder})

		start := time.Now()
		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), DefaultTimeout)

		require.Len(t, result.Tracks, 30)
		assert.Equal(t, 40, result.Requested)
		assert.Equal(t, 10, result.Unresolved)

		var want []string
		for i := range 40 {
			if i%4 != 3 {
				want = append(want, fmt.Sprintf("spotify:track:t%d", i))
			}
		}
		assert.Equal(t, want, resolver.URIs(result.Tracks))

		require.NotNil(t, result.Playlist)
		assert.Equal(t, want, catalog.Added(result.Playlist.ID))
		assert.Equal(t, 1, catalog.AddCalls())
		assert.Equal(t, 30, result.Playlist.TrackCount)
		assert.Equal(t, DefaultDescription, result.Playlist.Description)

		require.Len(t, recorder.runs, 1)
		assert.Equal(t, models.ModeMentions, recorder.runs[0].Mode)
		assert.Equal(t, 30, recorder.runs[0].Resolved)
		assert.Equal(t, 10, recorder.runs[0].Unresolved)
	})

	t.Run("caps the playlist in mention order", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 40, func(int) bool { return true })
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		require.Len(t, result.Tracks, 30)
		assert.Equal(t, "t0", result.Tracks[0].ID)
		assert.Equal(t, "t29", result.Tracks[29].ID)
		assert.Zero(t, result.Unresolved)
	})

	t.Run("drops duplicate tracks", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		bo := tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")
		catalog.Results["Bohemian Rhapsody - Queen"] = []models.Track{bo}
		catalog.Results["Queen - Bohemian Rhapsody"] = []models.Track{bo}
		catalog.Results["Under Pressure - Queen"] = []models.Track{tu.NewTrack("up", "Under Pressure", "Queen")}
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{
			Name:     "Queen",
			Mentions: []string{"Bohemian Rhapsody - Queen", "Queen - Bohemian Rhapsody", "Under Pressure - Queen", "  "},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:bo", "spotify:track:up"}, resolver.URIs(result.Tracks))
		assert.Equal(t, 3, result.Requested)
		assert.Zero(t, result.Unresolved)
	})

	t.Run("abandons stragglers at the deadline", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 6, func(int) bool { return true })
		catalog.Delays[mentions[2]] = 10 * time.Second
		e := newEngine(t, catalog, nil, EngineOpts{Timeout: 100 * time.Millisecond})

		start := time.Now()
		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)

		assert.Len(t, result.Tracks, 5)
		assert.Equal(t, 1, result.Unresolved)
		assert.True(t, result.Mentions[2].TimedOut)
		assert.NotContains(t, resolver.URIs(result.Tracks), "spotify:track:t2")
	})

	t.Run("in-flight searches outlive the deadline", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 3, func(int) bool { return true })
		catalog.Delays[mentions[1]] = 300 * time.Millisecond
		e := newEngine(t, catalog, nil, EngineOpts{Timeout: 50 * time.Millisecond})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		assert.True(t, result.Mentions[1].TimedOut)
		assert.Len(t, result.Tracks, 2)

		time.Sleep(500 * time.Millisecond)
		assert.Zero(t, catalog.Interrupted())
	})

	t.Run("mentions differing in case or spacing share one search", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		catalog.Results["Heroes - David Bowie"] = []models.Track{tu.NewTrack("he", "Heroes", "David Bowie")}
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{
			Name:     "Bowie",
			Mentions: []string{"Heroes - David Bowie", "heroes  -  DAVID   bowie"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Heroes - David Bowie"}, catalog.Queries())
		assert.Equal(t, 2, result.Requested)
		assert.Zero(t, result.Unresolved)
		require.Len(t, result.Mentions, 2)
		assert.Equal(t, "he", result.Mentions[1].Track.ID)
		assert.Equal(t, []string{"spotify:track:he"}, resolver.URIs(result.Tracks))
	})

	t.Run("auth failure aborts the run", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 10, func(int) bool { return true })
		catalog.Errors[mentions[4]] = fmt.Errorf("%w: 401", shared.ErrTokenExpired)
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		assert.Nil(t, result)
		assert.True(t, shared.IsAuthError(err))
		assert.Empty(t, catalog.Created())
	})

	t.Run("transient failures count as unresolved", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 3, func(int) bool { return true })
		catalog.Errors[mentions[1]] = temporaryError{}
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		assert.Len(t, result.Tracks, 2)
		assert.Equal(t, 1, result.Unresolved)
	})

	t.Run("nothing resolved creates no playlist", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 5, func(int) bool { return false })
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		assert.ErrorIs(t, err, shared.ErrNoTracks)
		require.NotNil(t, result)
		assert.Equal(t, 5, result.Unresolved)
		assert.Nil(t, result.Playlist)
		assert.Empty(t, catalog.Created())
		assert.Zero(t, catalog.AddCalls())
	})

	t.Run("cancelled context", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 5, func(int) bool { return true })
		e := newEngine(t, catalog, nil, EngineOpts{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Run(ctx, nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, catalog.Created())
	})

	t.Run("missing name", func(t *testing.T) {
		e := newEngine(t, tu.NewFakeCatalog(), nil, EngineOpts{})
		_, err := e.Run(context.Background(), nil, PlaylistRequest{Mentions: []string{"a - b"}})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("add failure keeps the created playlist", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 2, func(int) bool { return true })
		catalog.AddErr = errors.New("boom")
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.Error(t, err)
		require.NotNil(t, result.Playlist)
		assert.Equal(t, 1, catalog.AddCalls())
	})

	t.Run("recorder failure is not fatal", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 2, func(int) bool { return true })
		e := newEngine(t, catalog, nil, EngineOpts{Recorder: &fakeRecorder{err: errors.New("disk full")}})

		result, err := e.Run(context.Background(), nil, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		assert.NotNil(t, result.Run)
	})

	t.Run("progress never blocks", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 8, func(int) bool { return true })
		e := newEngine(t, catalog, nil, EngineOpts{})

		unread := make(chan ProgressUpdate)
		_, err := e.Run(context.Background(), unread, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
	})

	t.Run("progress phases", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		mentions := seedMentions(catalog, 3, func(int) bool { return true })
		e := newEngine(t, catalog, nil, EngineOpts{})

		progress := make(chan ProgressUpdate, 64)
		_, err := e.Run(context.Background(), progress, PlaylistRequest{Name: "Mix", Mentions: mentions})
		require.NoError(t, err)
		close(progress)

		phases := map[Phase]int{}
		for u := range progress {
			phases[u.Phase]++
		}
		assert.Equal(t, 4, phases[ResolveTracks])
		assert.Equal(t, 2, phases[CreatePlaylist])
		assert.Equal(t, 1, phases[AddTracks])
	})
}

// temporaryError is retried by the executor.
type temporaryError struct{}

func (temporaryError) Error() string   { return "503 service unavailable" }
func (temporaryError) Temporary() bool { return true }

func TestRunURIs(t *testing.T) {
	t.Run("batches lookups with a pause", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		ids := make([]string, 45)
		for i := range ids {
			id := tu.TrackID(fmt.Sprintf("id%d", i))
			track := tu.NewTrack(id, fmt.Sprintf("Song %d", i), "Artist")
			catalog.Tracks[id] = &track
			switch i % 3 {
			case 0:
				ids[i] = id
			case 1:
				ids[i] = "spotify:track:" + id
			default:
				ids[i] = "https://open.spotify.com/track/" + id + "?si=abc"
			}
		}
		clock := tu.NewFakeClock(time.Unix(0, 0))
		e := newEngine(t, catalog, nil, EngineOpts{Clock: clock, PlaylistSize: 50})

		result, err := e.RunURIs(context.Background(), nil, PlaylistRequest{Name: "Mix", IDs: ids})
		require.NoError(t, err)
		assert.Len(t, result.Tracks, 45)
		assert.Equal(t, tu.TrackID("id0"), result.Tracks[0].ID)
		assert.Equal(t, tu.TrackID("id44"), result.Tracks[44].ID)

		lookups := catalog.Lookups()
		require.Len(t, lookups, 3)
		assert.Len(t, lookups[0], 20)
		assert.Len(t, lookups[1], 20)
		assert.Len(t, lookups[2], 5)
		assert.Equal(t, []time.Duration{DefaultBatchDelay, DefaultBatchDelay}, clock.Sleeps())
	})

	t.Run("serves cached tracks without fetching", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		freshID, knownID := tu.TrackID("fresh"), tu.TrackID("known")
		fresh := tu.NewTrack(freshID, "Fresh", "Artist")
		catalog.Tracks[freshID] = &fresh

		c, err := cache.New(16)
		require.NoError(t, err)
		known := tu.NewTrack(knownID, "Known", "Artist")
		c.StoreTrack(&known)

		e := newEngine(t, catalog, nil, EngineOpts{Cache: c})
		result, err := e.RunURIs(context.Background(), nil, PlaylistRequest{Name: "Mix", IDs: []string{knownID, freshID}})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:" + knownID, "spotify:track:" + freshID}, resolver.URIs(result.Tracks))
		assert.Equal(t, [][]string{{freshID}}, catalog.Lookups())
	})

	t.Run("counts malformed and missing ids", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		okID, goneID, shortID := tu.TrackID("ok"), tu.TrackID("gone"), tu.TrackID("short")
		ok := tu.NewTrack(okID, "Ok", "Artist")
		short := tu.NewTrack(shortID, "Intro", "Artist")
		short.DurationMS = 10_000
		catalog.Tracks[okID] = &ok
		catalog.Tracks[shortID] = &short
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.RunURIs(context.Background(), nil, PlaylistRequest{
			Name: "Mix",
			IDs:  []string{okID, "not a uri!", goneID, okID, shortID},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:" + okID}, resolver.URIs(result.Tracks))
		assert.Equal(t, 5, result.Requested)
		assert.Equal(t, 2, result.Unresolved)
		assert.Equal(t, [][]string{{okID, goneID, shortID}}, catalog.Lookups())
	})

	t.Run("short id stays out of its batch", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		ids := make([]string, 0, 20)
		for i := range 19 {
			id := tu.TrackID(fmt.Sprintf("id%d", i))
			track := tu.NewTrack(id, fmt.Sprintf("Song %d", i), "Artist")
			catalog.Tracks[id] = &track
			ids = append(ids, id)
		}
		ids = append(ids[:10], append([]string{"spotify:track:x1"}, ids[10:]...)...)
		e := newEngine(t, catalog, nil, EngineOpts{})

		result, err := e.RunURIs(context.Background(), nil, PlaylistRequest{Name: "Mix", IDs: ids})
		require.NoError(t, err)
		assert.Len(t, result.Tracks, 19)
		assert.Equal(t, 1, result.Unresolved)

		lookups := catalog.Lookups()
		require.Len(t, lookups, 1)
		assert.Len(t, lookups[0], 19)
		assert.NotContains(t, lookups[0], "x1")
	})
}

func TestParseTrackID(t *testing.T) {
	tests := []struct {
		in string
		id string
		ok bool
	}{
		{"4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC", true},
		{" spotify:track:4uLU6hMCjMI75M1A2tKUQC ", "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x", "4uLU6hMCjMI75M1A2tKUQC", true},
		{"open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", "4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/album/4uLU6hMCjMI75M1A2tKUQC", "", false},
		{"abc", "", false},
		{"spotify:track:x1", "", false},
		{"4uLU6hMCjMI75M1A2tKUQCx", "", false},
		{"spotify:track:", "", false},
		{"spotify:album:abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, ok := ParseTrackID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestRunArtists(t *testing.T) {
	t.Run("interleaves top tracks of seeds and similar artists", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		index.SimilarByArtist["Queen"] = []string{"David Bowie"}
		index.TracksByArtist["Queen"] = []string{"Bohemian Rhapsody", "Under Pressure"}
		index.TracksByArtist["David Bowie"] = []string{"Heroes", "Under Pressure"}

		up := tu.NewTrack("up", "Under Pressure", "Queen")
		catalog := tu.NewFakeCatalog()
		catalog.Results["Bohemian Rhapsody - Queen"] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}
		catalog.Results["Heroes - David Bowie"] = []models.Track{tu.NewTrack("he", "Heroes", "David Bowie")}
		catalog.Results["Under Pressure - Queen"] = []models.Track{up}
		catalog.Results["Under Pressure - David Bowie"] = []models.Track{up}

		recorder := &fakeRecorder{}
		e := newEngine(t, catalog, index, EngineOpts{Recorder: recorder})

		result, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Queen Radio", Artists: []string{"Queen"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:bo", "spotify:track:he", "spotify:track:up"}, resolver.URIs(result.Tracks))
		require.Len(t, result.Similar, 1)
		assert.Equal(t, models.TierDirect, result.Similar[0].Tier)
		assert.Empty(t, catalog.Lookups())
		assert.Zero(t, e.Cache().Stats().Hits, "resolved tracks are used without a second lookup")

		require.Len(t, recorder.runs, 1)
		assert.Equal(t, models.ModeArtists, recorder.runs[0].Mode)
	})

	t.Run("seeds from listening history without artists", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		index.TracksByArtist["Bonobo"] = []string{"Kerala"}
		index.TracksByArtist["Tycho"] = []string{"Awake"}

		catalog := tu.NewFakeCatalog()
		catalog.TopByRange[models.TimeRangeShort] = []string{"Bonobo", "Tycho"}
		catalog.Results["Kerala - Bonobo"] = []models.Track{tu.NewTrack("ke", "Kerala", "Bonobo")}
		catalog.Results["Awake - Tycho"] = []models.Track{tu.NewTrack("aw", "Awake", "Tycho")}

		e := newEngine(t, catalog, index, EngineOpts{History: catalog})
		result, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Recent", History: "short"})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:ke", "spotify:track:aw"}, resolver.URIs(result.Tracks))
		assert.Equal(t, 1, catalog.HistoryCalls())
		assert.Equal(t, models.ModeArtists, result.Run.Mode)
	})

	t.Run("explicit artists ignore listening history", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		index.TracksByArtist["Queen"] = []string{"Bohemian Rhapsody"}
		catalog := tu.NewFakeCatalog()
		catalog.Results["Bohemian Rhapsody - Queen"] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}

		e := newEngine(t, catalog, index, EngineOpts{History: catalog})
		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", Artists: []string{"Queen"}, History: "long"})
		require.NoError(t, err)
		assert.Zero(t, catalog.HistoryCalls())
	})

	t.Run("unknown history range", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		e := newEngine(t, catalog, tu.NewFakeArtistIndex(), EngineOpts{History: catalog})
		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", History: "forever"})
		assert.ErrorIs(t, err, shared.ErrInvalidArgument)
	})

	t.Run("history needs a source", func(t *testing.T) {
		e := newEngine(t, tu.NewFakeCatalog(), tu.NewFakeArtistIndex(), EngineOpts{})
		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", History: "short"})
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	})

	t.Run("needs a discovery source", func(t *testing.T) {
		e := newEngine(t, tu.NewFakeCatalog(), nil, EngineOpts{})
		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", Artists: []string{"Queen"}})
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	})

	t.Run("needs a seed", func(t *testing.T) {
		e := newEngine(t, tu.NewFakeCatalog(), tu.NewFakeArtistIndex(), EngineOpts{})
		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", Artists: []string{" "}})
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("auth failure propagates", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		index.Err = shared.ErrInvalidCredentials
		e := newEngine(t, tu.NewFakeCatalog(), index, EngineOpts{})

		_, err := e.RunArtists(context.Background(), nil, PlaylistRequest{Name: "Mix", Artists: []string{"Queen"}})
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})
}

func TestRunTags(t *testing.T) {
	t.Run("uses tag top artists without similarity", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		index.ArtistsByTag["shoegaze"] = []string{"Slowdive"}
		index.ArtistsByTag["dream pop"] = []string{"slowdive", "Beach House"}
		index.TracksByArtist["Slowdive"] = []string{"Alison"}
		index.TracksByArtist["Beach House"] = []string{"Space Song"}

		catalog := tu.NewFakeCatalog()
		catalog.Results["Alison - Slowdive"] = []models.Track{tu.NewTrack("al", "Alison", "Slowdive")}
		catalog.Results["Space Song - Beach House"] = []models.Track{tu.NewTrack("ss", "Space Song", "Beach House")}

		e := newEngine(t, catalog, index, EngineOpts{})
		result, err := e.RunTags(context.Background(), nil, PlaylistRequest{Name: "Haze", Tags: []string{"shoegaze", "dream pop"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"spotify:track:al", "spotify:track:ss"}, resolver.URIs(result.Tracks))
		assert.Equal(t, models.ModeTags, result.Run.Mode)

		for _, call := range index.Calls() {
			assert.NotContains(t, call, "similar:")
		}
	})

	t.Run("spreads the playlist across many artists", func(t *testing.T) {
		index := tu.NewFakeArtistIndex()
		catalog := tu.NewFakeCatalog()
		for tag := range 3 {
			tagName := fmt.Sprintf("tag %d", tag)
			for a := range 10 {
				artist := fmt.Sprintf("Artist %d-%d", tag, a)
				index.ArtistsByTag[tagName] = append(index.ArtistsByTag[tagName], artist)
				for rank := range 5 {
					title := fmt.Sprintf("Song %d", rank)
					index.TracksByArtist[artist] = append(index.TracksByArtist[artist], title)
					id := fmt.Sprintf("%d-%d-%d", tag, a, rank)
					catalog.Results[title+" - "+artist] = []models.Track{tu.NewTrack(id, title, artist)}
				}
			}
		}

		e := newEngine(t, catalog, index, EngineOpts{})
		result, err := e.RunTags(context.Background(), nil, PlaylistRequest{Name: "Wide", Tags: []string{"tag 0", "tag 1", "tag 2"}})
		require.NoError(t, err)
		assert.Equal(t, 30, result.Requested)
		assert.Len(t, result.Tracks, 30)
		assert.Len(t, catalog.Queries(), 30)
	})

	t.Run("no artists for tags", func(t *testing.T) {
		e := newEngine(t, tu.NewFakeCatalog(), tu.NewFakeArtistIndex(), EngineOpts{})
		_, err := e.RunTags(context.Background(), nil, PlaylistRequest{Name: "Mix", Tags: []string{"unknown"}})
		assert.ErrorIs(t, err, shared.ErrNoTracks)
	})
}

func TestTopTags(t *testing.T) {
	index := tu.NewFakeArtistIndex()
	index.Tags = []string{"rock", "electronic"}
	e := newEngine(t, tu.NewFakeCatalog(), index, EngineOpts{})

	tags, err := e.TopTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rock", "electronic"}, tags)

	_, err = newEngine(t, tu.NewFakeCatalog(), nil, EngineOpts{}).TopTags(context.Background())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
