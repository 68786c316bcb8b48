package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
	tu "github.com/desertthunder/playgen/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// temporaryError is retried by the executor.
type temporaryError struct{}

func (temporaryError) Error() string   { return "503 service unavailable" }
func (temporaryError) Temporary() bool { return true }

func fastRetry() *retry.Executor {
	return retry.New(retry.Options{NewTimer: func() backoff.Timer { return tu.NewFakeTimer() }})
}

func newTrackResolver(t *testing.T, catalog *tu.FakeCatalog) (*TrackResolver, *cache.Cache) {
	t.Helper()
	c, err := cache.New(64)
	require.NoError(t, err)
	r, err := NewTrackResolver(catalog, TrackOpts{Cache: c, Retry: fastRetry()})
	require.NoError(t, err)
	return r, c
}

func TestTrackResolver(t *testing.T) {
	const mention = "Bohemian Rhapsody - Queen"
	structured := `track:"Bohemian Rhapsody" artist:"Queen"`

	t.Run("full string search wins first", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		catalog.Results[mention] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}
		r, _ := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "bo", m.Track.ID)
		assert.Equal(t, StrategyFull, m.Strategy)
		assert.Equal(t, []string{mention}, catalog.Queries())
	})

	t.Run("invalid top hit continues the chain", func(t *testing.T) {
		preview := tu.NewTrack("preview", "Bohemian Rhapsody (Preview)", "Queen")
		preview.DurationMS = 15_000

		catalog := tu.NewFakeCatalog()
		catalog.Results[mention] = []models.Track{preview, tu.NewTrack("second", "Bohemian Rhapsody", "Queen")}
		catalog.Results[structured] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}
		r, _ := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "bo", m.Track.ID, "only the top hit of a result set is considered")
		assert.Equal(t, StrategyStructured, m.Strategy)
		assert.Equal(t, []string{mention, `"` + mention + `"`, structured}, catalog.Queries())
	})

	t.Run("exhausted strategy does not stop the chain", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		catalog.Errors[mention] = temporaryError{}
		catalog.Results[`"`+mention+`"`] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}
		r, _ := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, StrategyQuoted, m.Strategy)
		assert.Len(t, catalog.Queries(), retry.DefaultMaxAttempts+1)
	})

	t.Run("sanitized search strips quotes", func(t *testing.T) {
		quoted := `"Hey Jude" The Beatles`
		catalog := tu.NewFakeCatalog()
		catalog.Results["Hey Jude The Beatles"] = []models.Track{tu.NewTrack("hj", "Hey Jude", "The Beatles")}
		r, _ := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), quoted)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, StrategySanitized, m.Strategy)
	})

	t.Run("unresolved mentions are not cached", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		r, c := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		assert.Nil(t, m)
		first := len(catalog.Queries())
		assert.Equal(t, 3, first, "sanitized query equals the full query and is skipped")

		_, ok := c.SearchResult(mention)
		assert.False(t, ok)

		_, err = r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		assert.Len(t, catalog.Queries(), 2*first)
	})

	t.Run("cache hit skips the catalog", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		catalog.Results[mention] = []models.Track{tu.NewTrack("bo", "Bohemian Rhapsody", "Queen")}
		r, c := newTrackResolver(t, catalog)

		_, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)

		m, err := r.Resolve(context.Background(), mention)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.True(t, m.Cached)
		assert.Len(t, catalog.Queries(), 1)

		byID, ok := c.Track("bo")
		require.True(t, ok)
		assert.Equal(t, "Bohemian Rhapsody", byID.Name)
	})

	t.Run("auth failure is returned", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		catalog.Errors[mention] = fmt.Errorf("%w: status 401", shared.ErrTokenExpired)
		r, _ := newTrackResolver(t, catalog)

		_, err := r.Resolve(context.Background(), mention)
		assert.ErrorIs(t, err, shared.ErrTokenExpired)
		assert.Len(t, catalog.Queries(), 1, "auth failures are not retried")
	})

	t.Run("cancelled context is returned", func(t *testing.T) {
		r, _ := newTrackResolver(t, tu.NewFakeCatalog())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.Resolve(ctx, mention)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("blank mention", func(t *testing.T) {
		catalog := tu.NewFakeCatalog()
		r, _ := newTrackResolver(t, catalog)

		m, err := r.Resolve(context.Background(), "   ")
		require.NoError(t, err)
		assert.Nil(t, m)
		assert.Empty(t, catalog.Queries())
	})

	t.Run("single word skips structured search", func(t *testing.T) {
		got := queries("Yesterday")
		require.Len(t, got, 2)
		assert.Equal(t, StrategyFull, got[0].strategy)
		assert.Equal(t, StrategyQuoted, got[1].strategy)
	})

	t.Run("needs a catalog", func(t *testing.T) {
		_, err := NewTrackResolver(nil, TrackOpts{})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}
