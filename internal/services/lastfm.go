// Last.fm tag and similarity client
//
// Method reference: https://www.last.fm/api
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/ratelimit"
	"github.com/desertthunder/playgen/internal/shared"
	"github.com/shkh/lastfm-go/lastfm"
	"github.com/sony/gobreaker/v2"
)

// Last.fm API error codes
const (
	lastfmInvalidService   = 2
	lastfmInvalidMethod    = 3
	lastfmAuthFailed       = 4
	lastfmInvalidParams    = 6 // returned for unknown artists and tags
	lastfmOperationFailed  = 8
	lastfmInvalidAPIKey    = 10
	lastfmServiceOffline   = 11
	lastfmTemporaryError   = 16
	lastfmSuspendedAPIKey  = 26
	lastfmRateLimitExceeds = 29
)

const (
	// LastfmTopTracksMax caps artist.getTopTracks results.
	LastfmTopTracksMax = 20
	// LastfmArtistSearchLimit is the page size for artist.search.
	LastfmArtistSearchLimit = 20
)

// lastfmBackend is the subset of the Last.fm API the service uses, flattened to names.
type lastfmBackend interface {
	SimilarArtists(artist string, limit int) ([]string, error)
	SearchArtists(name string, limit int) ([]string, error)
	ArtistInfo(name string) (string, error)
	ArtistTopTags(artist string) ([]string, error)
	ArtistTopTracks(artist string, limit int) ([]string, error)
	TagTopArtists(tag string, limit int) ([]string, error)
	TopTags() ([]string, error)
}

// LastfmOpts configures a [LastfmService].
type LastfmOpts struct {
	Limiter          *ratelimit.Limiter
	Logger           *log.Logger
	FailureThreshold uint32        // Consecutive temporary failures before the breaker opens (default 5)
	OpenTimeout      time.Duration // How long the breaker stays open (default 30s)

	backend lastfmBackend
}

// LastfmService queries Last.fm for similar artists, tags and top tracks.
//
// Calls are keyed by a static API key and need no user session. Every call waits on the limiter and runs through
// a circuit breaker that opens after repeated temporary failures. The underlying client has no context support,
// so a cancelled call returns at once and its late result is dropped.
type LastfmService struct {
	backend lastfmBackend
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[any]
	logger  *log.Logger
}

// NewLastfmService creates a client for the given "api_key" and "api_secret" credentials.
func NewLastfmService(credentials map[string]string, opts LastfmOpts) (*LastfmService, error) {
	backend := opts.backend
	if backend == nil {
		apiKey := credentials["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("%w: missing api_key", shared.ErrMissingCredentials)
		}
		backend = &lastfmAPI{api: lastfm.New(apiKey, credentials["api_secret"])}
	}

	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	logger := shared.WithLogger(opts.Logger, "service", "lastfm")
	threshold := opts.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "lastfm",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return true
		},
	})

	return &LastfmService{
		backend: backend,
		limiter: opts.Limiter,
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (s *LastfmService) Name() string {
	return "Last.fm"
}

// SimilarArtists returns up to limit artists similar to artist, best match first. Unknown artists yield an empty list.
func (s *LastfmService) SimilarArtists(ctx context.Context, artist string, limit int) ([]string, error) {
	names, err := lastfmCall(ctx, s, "artist.getSimilar", func() ([]string, error) {
		return s.backend.SimilarArtists(artist, limit)
	})
	return names, notFoundAsEmpty(err)
}

// SearchArtists returns artist names matching name in Last.fm's relevance order.
func (s *LastfmService) SearchArtists(ctx context.Context, name string) ([]string, error) {
	names, err := lastfmCall(ctx, s, "artist.search", func() ([]string, error) {
		return s.backend.SearchArtists(name, LastfmArtistSearchLimit)
	})
	return names, notFoundAsEmpty(err)
}

// ArtistExists reports whether Last.fm knows the artist.
func (s *LastfmService) ArtistExists(ctx context.Context, name string) (bool, error) {
	found, err := lastfmCall(ctx, s, "artist.getInfo", func() (string, error) {
		return s.backend.ArtistInfo(name)
	})
	if errors.Is(err, shared.ErrArtistNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return found != "", nil
}

// ArtistTopTags returns up to limit of the artist's tags, most applied first.
func (s *LastfmService) ArtistTopTags(ctx context.Context, artist string, limit int) ([]string, error) {
	tags, err := lastfmCall(ctx, s, "artist.getTopTags", func() ([]string, error) {
		return s.backend.ArtistTopTags(artist)
	})
	return capNames(tags, limit), notFoundAsEmpty(err)
}

// ArtistTopTracks returns the names of up to limit of the artist's most played tracks, capped at [LastfmTopTracksMax].
func (s *LastfmService) ArtistTopTracks(ctx context.Context, artist string, limit int) ([]string, error) {
	if limit <= 0 || limit > LastfmTopTracksMax {
		limit = LastfmTopTracksMax
	}
	tracks, err := lastfmCall(ctx, s, "artist.getTopTracks", func() ([]string, error) {
		return s.backend.ArtistTopTracks(artist, limit)
	})
	return capNames(tracks, limit), notFoundAsEmpty(err)
}

// TagTopArtists returns the top artists for a tag.
func (s *LastfmService) TagTopArtists(ctx context.Context, tag string, limit int) ([]string, error) {
	names, err := lastfmCall(ctx, s, "tag.getTopArtists", func() ([]string, error) {
		return s.backend.TagTopArtists(tag, limit)
	})
	return capNames(names, limit), notFoundAsEmpty(err)
}

// TopTags returns the most used tags across Last.fm.
func (s *LastfmService) TopTags(ctx context.Context) ([]string, error) {
	return lastfmCall(ctx, s, "tag.getTopTags", s.backend.TopTags)
}

// lastfmCall waits on the limiter and runs fn through the breaker.
func lastfmCall[T any](ctx context.Context, s *LastfmService, method string, fn func() (T, error)) (T, error) {
	var zero T
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	type result struct {
		value any
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := s.breaker.Execute(func() (any, error) {
			v, err := fn()
			if err != nil {
				return nil, mapLastfmError(method, err)
			}
			return v, nil
		})
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		if errors.Is(r.err, gobreaker.ErrOpenState) || errors.Is(r.err, gobreaker.ErrTooManyRequests) {
			s.logger.Debug("call rejected", "method", method, "error", r.err)
			return zero, &APIError{
				Service:  "lastfm",
				Status:   http.StatusServiceUnavailable,
				Message:  method + ": " + r.err.Error(),
				sentinel: shared.ErrServiceUnavailable,
				rejected: true,
			}
		}
		if r.err != nil {
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	}
}

// mapLastfmError translates library errors to the shared taxonomy.
func mapLastfmError(method string, err error) error {
	var lfmErr *lastfm.LastfmError
	if !errors.As(err, &lfmErr) {
		return newAPIError("lastfm", 0, fmt.Sprintf("%s: %v", method, err))
	}

	switch lfmErr.Code {
	case lastfmInvalidParams:
		return fmt.Errorf("%w: %s: %s", shared.ErrArtistNotFound, method, lfmErr.Message)
	case lastfmInvalidAPIKey, lastfmSuspendedAPIKey, lastfmAuthFailed:
		return fmt.Errorf("%w: last.fm: %s", shared.ErrInvalidCredentials, lfmErr.Message)
	case lastfmRateLimitExceeds:
		return newAPIError("lastfm", http.StatusTooManyRequests, lfmErr.Message)
	case lastfmOperationFailed, lastfmServiceOffline, lastfmTemporaryError:
		return newAPIError("lastfm", http.StatusServiceUnavailable, lfmErr.Message)
	case lastfmInvalidService, lastfmInvalidMethod:
		return newAPIError("lastfm", http.StatusBadRequest, fmt.Sprintf("%s: %s", method, lfmErr.Message))
	default:
		return newAPIError("lastfm", http.StatusBadRequest, fmt.Sprintf("%s: code %d: %s", method, lfmErr.Code, lfmErr.Message))
	}
}

func notFoundAsEmpty(err error) error {
	if errors.Is(err, shared.ErrArtistNotFound) {
		return nil
	}
	return err
}

func capNames(names []string, limit int) []string {
	if limit > 0 && len(names) > limit {
		return names[:limit]
	}
	return names
}

// lastfmAPI adapts [lastfm.Api] to [lastfmBackend].
type lastfmAPI struct {
	api *lastfm.Api
}

func (l *lastfmAPI) SimilarArtists(artist string, limit int) ([]string, error) {
	result, err := l.api.Artist.GetSimilar(lastfm.P{"artist": artist, "limit": limit, "autocorrect": 0})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Similars))
	for _, a := range result.Similars {
		names = appendName(names, a.Name)
	}
	return names, nil
}

func (l *lastfmAPI) SearchArtists(name string, limit int) ([]string, error) {
	result, err := l.api.Artist.Search(lastfm.P{"artist": name, "limit": limit})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.ArtistMatches))
	for _, a := range result.ArtistMatches {
		names = appendName(names, a.Name)
	}
	return names, nil
}

func (l *lastfmAPI) ArtistInfo(name string) (string, error) {
	result, err := l.api.Artist.GetInfo(lastfm.P{"artist": name})
	if err != nil {
		return "", err
	}
	return result.Name, nil
}

func (l *lastfmAPI) ArtistTopTags(artist string) ([]string, error) {
	result, err := l.api.Artist.GetTopTags(lastfm.P{"artist": artist})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Tags))
	for _, t := range result.Tags {
		names = appendName(names, t.Name)
	}
	return names, nil
}

func (l *lastfmAPI) ArtistTopTracks(artist string, limit int) ([]string, error) {
	result, err := l.api.Artist.GetTopTracks(lastfm.P{"artist": artist, "limit": limit})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		names = appendName(names, t.Name)
	}
	return names, nil
}

func (l *lastfmAPI) TagTopArtists(tag string, limit int) ([]string, error) {
	params := lastfm.P{"tag": tag}
	if limit > 0 {
		params["limit"] = limit
	}
	result, err := l.api.Tag.GetTopArtists(params)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Artists))
	for _, a := range result.Artists {
		names = appendName(names, a.Name)
	}
	return names, nil
}

func (l *lastfmAPI) TopTags() ([]string, error) {
	result, err := l.api.Tag.GetTopTags(lastfm.P{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Tags))
	for _, t := range result.Tags {
		names = appendName(names, t.Name)
	}
	return names, nil
}

func appendName(names []string, name string) []string {
	if name = strings.TrimSpace(name); name != "" {
		return append(names, name)
	}
	return names
}
