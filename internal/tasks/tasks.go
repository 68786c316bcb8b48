package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/ratelimit"
	"github.com/desertthunder/playgen/internal/resolver"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
)

const (
	DefaultWorkers         = 5
	DefaultTimeout         = 15 * time.Second
	DefaultBatchSize       = 20
	DefaultBatchDelay      = 200 * time.Millisecond
	DefaultTracksPerArtist = 5
	DefaultDescription     = "Generated playlist"
)

// Catalog is the track catalog a playlist is built in.
type Catalog interface {
	resolver.Searcher
	SeveralTracks(ctx context.Context, ids []string) ([]*models.Track, error)
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

// Discovery is the similarity and tag source behind the artist and tag modes.
type Discovery interface {
	resolver.ArtistIndex
	ArtistTopTracks(ctx context.Context, artist string, limit int) ([]string, error)
	TopTags(ctx context.Context) ([]string, error)
}

// ListeningHistory is the user's listening history, which seeds artist playlists given no artists.
//
// Implemented by services.SpotifyService.
type ListeningHistory interface {
	TopArtists(ctx context.Context, timeRange models.TimeRange, limit int) ([]string, error)
}

// RunRecorder persists a summary of each created playlist.
//
// Implemented by repositories.RunRepository.
type RunRecorder interface {
	Create(run *models.Run) error
}

// EngineOpts configures a [PlaylistEngine]. Zero values are replaced by defaults.
type EngineOpts struct {
	Workers         int           // Concurrent mention resolutions (default 5)
	Timeout         time.Duration // Join-all deadline of one fan-out (default 15s)
	PlaylistSize    int           // Track cap (default 30)
	BatchSize       int           // Ids per track detail request (default 20)
	BatchDelay      time.Duration // Pause between detail requests (default 200ms, negative for none)
	TracksPerArtist int           // Top tracks taken per artist (default 5)
	SimilarLimit    int           // Similar artists per seed and artists per tag (default 10)
	Cache           *cache.Cache
	Retry           *retry.Executor
	Recorder        RunRecorder      // Optional
	History         ListeningHistory // Optional
	Clock           ratelimit.Clock
	Logger          *log.Logger
}

// Outcome is the resolution of one mention.
type Outcome struct {
	Mention  string            `json:"mention"`
	Track    *models.Track     `json:"track,omitempty"`
	Strategy resolver.Strategy `json:"strategy,omitempty"`
	Err      error             `json:"-"`
	TimedOut bool              `json:"timed_out,omitempty"`
}

// Resolved reports whether the mention produced a track.
func (o Outcome) Resolved() bool {
	return o.Track != nil
}

// ResolveResult is the output of one fan-out over a list of mentions.
type ResolveResult struct {
	Tracks     []*models.Track `json:"tracks"`     // Valid, distinct, capped, in mention order
	Outcomes   []Outcome       `json:"outcomes"`   // One per mention, in mention order
	Requested  int             `json:"requested"`  // Non-blank mentions
	Unresolved int             `json:"unresolved"` // Mentions without a track
	TimedOut   int             `json:"timed_out"`  // Mentions abandoned at the deadline
}

// PlaylistRequest describes a playlist to build. Which input list is read depends on the mode.
type PlaylistRequest struct {
	Name        string
	Description string
	Public      bool
	Mentions    []string // "Title - Artist" style free text
	IDs         []string // Catalog ids, track URIs or track URLs
	Artists     []string // Seed artists
	Tags        []string
	History     string // Listening history range seeding the artist mode when Artists is empty
}

// PlaylistResult contains the created playlist and how it was filled.
type PlaylistResult struct {
	Playlist   *models.Playlist         `json:"playlist,omitempty"`
	Tracks     []*models.Track          `json:"tracks"`
	Requested  int                      `json:"requested"`
	Unresolved int                      `json:"unresolved"`
	Similar    []*models.SimilarArtists `json:"similar,omitempty"`
	Mentions   []Outcome                `json:"mentions,omitempty"`
	Run        *models.Run              `json:"run,omitempty"`
}

// PlaylistEngine turns recommendation text, catalog ids, seed artists or tags into a playlist.
type PlaylistEngine struct {
	catalog   Catalog
	discovery Discovery
	tracks    *resolver.TrackResolver
	artists   *resolver.ArtistResolver
	cache     *cache.Cache
	retry     *retry.Executor
	recorder  RunRecorder
	history   ListeningHistory
	clock     ratelimit.Clock
	logger    *log.Logger

	workers         int
	timeout         time.Duration
	playlistSize    int
	batchSize       int
	batchDelay      time.Duration
	tracksPerArtist int
	similarLimit    int
}

// NewPlaylistEngine creates an engine over catalog. discovery may be nil, which disables the artist and tag modes.
func NewPlaylistEngine(catalog Catalog, discovery Discovery, opts EngineOpts) (*PlaylistEngine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: playlist engine needs a catalog", shared.ErrInvalidConfig)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PlaylistSize <= 0 {
		opts.PlaylistSize = resolver.DefaultPlaylistSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	switch {
	case opts.BatchDelay == 0:
		opts.BatchDelay = DefaultBatchDelay
	case opts.BatchDelay < 0:
		opts.BatchDelay = 0
	}
	if opts.TracksPerArtist <= 0 {
		opts.TracksPerArtist = DefaultTracksPerArtist
	}
	if opts.SimilarLimit <= 0 {
		opts.SimilarLimit = resolver.DefaultSimilarLimit
	}
	if opts.Clock == nil {
		opts.Clock = ratelimit.SystemClock
	}
	if opts.Cache == nil {
		c, err := cache.New(cache.DefaultSize)
		if err != nil {
			return nil, err
		}
		opts.Cache = c
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(retry.Options{Logger: opts.Logger})
	}

	tracks, err := resolver.NewTrackResolver(catalog, resolver.TrackOpts{
		Cache:  opts.Cache,
		Retry:  opts.Retry,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	e := &PlaylistEngine{
		catalog:         catalog,
		tracks:          tracks,
		cache:           opts.Cache,
		retry:           opts.Retry,
		recorder:        opts.Recorder,
		history:         opts.History,
		clock:           opts.Clock,
		logger:          shared.WithLogger(opts.Logger, "component", "engine"),
		workers:         opts.Workers,
		timeout:         opts.Timeout,
		playlistSize:    opts.PlaylistSize,
		batchSize:       opts.BatchSize,
		batchDelay:      opts.BatchDelay,
		tracksPerArtist: opts.TracksPerArtist,
		similarLimit:    opts.SimilarLimit,
	}

	if discovery != nil {
		artists, err := resolver.NewArtistResolver(discovery, resolver.ArtistOpts{
			Limit:   opts.SimilarLimit,
			Workers: opts.Workers,
			Cache:   opts.Cache,
			Retry:   opts.Retry,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		e.discovery = discovery
		e.artists = artists
	}
	return e, nil
}

// Cache returns the engine's result cache.
func (e *PlaylistEngine) Cache() *cache.Cache {
	return e.cache
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run resolves req.Mentions and creates a playlist of the resolved tracks.
func (e *PlaylistEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, req PlaylistRequest) (*PlaylistResult, error) {
	if err := checkName(req); err != nil {
		return nil, err
	}

	res, err := e.Resolve(ctx, progress, req.Mentions)
	if err != nil {
		return nil, err
	}

	result := &PlaylistResult{
		Tracks:     res.Tracks,
		Requested:  res.Requested,
		Unresolved: res.Unresolved,
		Mentions:   res.Outcomes,
	}
	return e.create(ctx, progress, models.ModeMentions, req, result)
}

// RunURIs looks up catalog ids and creates a playlist of the valid tracks.
//
// Entries may be bare ids, spotify:track: URIs or open.spotify.com track links. Cached tracks are used as is;
// the rest are fetched in batches with a pause between batches.
func (e *PlaylistEngine) RunURIs(ctx context.Context, progress chan<- ProgressUpdate, req PlaylistRequest) (*PlaylistResult, error) {
	if err := checkName(req); err != nil {
		return nil, err
	}

	tracks, unresolved, err := e.Lookup(ctx, progress, req.IDs)
	if err != nil {
		return nil, err
	}

	result := &PlaylistResult{
		Tracks:     tracks,
		Requested:  len(req.IDs),
		Unresolved: unresolved,
	}
	return e.create(ctx, progress, models.ModeURIs, req, result)
}

// RunArtists builds a playlist from seed artists and the artists similar to them.
//
// Each artist contributes its top tracks, interleaved by rank so the head of the playlist covers every artist.
// Without seed artists, req.History names the listening history range whose top artists become the seeds.
func (e *PlaylistEngine) RunArtists(ctx context.Context, progress chan<- ProgressUpdate, req PlaylistRequest) (*PlaylistResult, error) {
	if err := checkName(req); err != nil {
		return nil, err
	}
	if e.discovery == nil {
		return nil, fmt.Errorf("%w: artist mode needs a similarity source", shared.ErrServiceUnavailable)
	}

	seeds := resolver.MergeNames([][]string{req.Artists}, nil, 0)
	if len(seeds) == 0 && strings.TrimSpace(req.History) != "" {
		history, err := e.historySeeds(ctx, progress, req.History)
		if err != nil {
			return nil, err
		}
		seeds = history
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: at least one artist is required", shared.ErrMissingArgument)
	}

	e.sendProgress(progress, findArtistsUpdate(0, len(seeds), nil))
	sets, err := e.artists.SimilarForSeeds(ctx, seeds)
	if err != nil {
		return nil, err
	}

	lists := [][]string{seeds}
	for i, set := range sets {
		e.sendProgress(progress, findArtistsUpdate(i+1, len(sets), set))
		lists = append(lists, set.Names)
	}
	pool := resolver.MergeNames(lists, nil, 0)

	result, err := e.fromArtists(ctx, progress, models.ModeArtists, req, pool)
	if result != nil {
		result.Similar = sets
	}
	return result, err
}

// RunTags builds a playlist from the top artists of each tag.
func (e *PlaylistEngine) RunTags(ctx context.Context, progress chan<- ProgressUpdate, req PlaylistRequest) (*PlaylistResult, error) {
	if err := checkName(req); err != nil {
		return nil, err
	}
	if e.discovery == nil {
		return nil, fmt.Errorf("%w: tag mode needs a tag source", shared.ErrServiceUnavailable)
	}

	tags := resolver.MergeNames([][]string{req.Tags}, nil, 0)
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: at least one tag is required", shared.ErrMissingArgument)
	}

	lists := make([][]string, 0, len(tags))
	for i, tag := range tags {
		names, err := e.call(ctx, "tag-artists", func(ctx context.Context) ([]string, error) {
			return e.discovery.TagTopArtists(ctx, tag, e.similarLimit)
		})
		if err != nil {
			return nil, err
		}
		e.sendProgress(progress, tagArtistsUpdate(i+1, len(tags), tag, len(names)))
		lists = append(lists, names)
	}

	return e.fromArtists(ctx, progress, models.ModeTags, req, resolver.MergeNames(lists, nil, 0))
}

// historySeeds returns the user's top artists over the named range.
func (e *PlaylistEngine) historySeeds(ctx context.Context, progress chan<- ProgressUpdate, rangeName string) ([]string, error) {
	timeRange, err := models.ParseTimeRange(rangeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
	}
	if e.history == nil {
		return nil, fmt.Errorf("%w: no listening history source configured", shared.ErrServiceUnavailable)
	}

	names, err := retry.Value(ctx, e.retry, "top-artists", func(ctx context.Context) ([]string, error) {
		return e.history.TopArtists(ctx, timeRange, e.similarLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read listening history: %w", err)
	}

	e.logger.Debug("seeded from listening history", "range", timeRange, "artists", len(names))
	e.sendProgress(progress, historyArtistsUpdate(timeRange, len(names)))
	return resolver.MergeNames([][]string{names}, nil, 0), nil
}

// TopTags returns the globally popular tags.
func (e *PlaylistEngine) TopTags(ctx context.Context) ([]string, error) {
	if e.discovery == nil {
		return nil, fmt.Errorf("%w: no tag source configured", shared.ErrServiceUnavailable)
	}
	return retry.Value(ctx, e.retry, "top-tags", e.discovery.TopTags)
}

// Similar returns the artists similar to artist.
func (e *PlaylistEngine) Similar(ctx context.Context, artist string) (*models.SimilarArtists, error) {
	if e.artists == nil {
		return nil, fmt.Errorf("%w: no similarity source configured", shared.ErrServiceUnavailable)
	}
	return e.artists.Similar(ctx, artist)
}

// fromArtists resolves the top tracks of artists to catalog tracks and builds the playlist from them.
func (e *PlaylistEngine) fromArtists(ctx context.Context, progress chan<- ProgressUpdate, mode string, req PlaylistRequest, artists []string) (*PlaylistResult, error) {
	if len(artists) == 0 {
		return &PlaylistResult{}, fmt.Errorf("%w: no artists found", shared.ErrNoTracks)
	}

	mentions, err := e.topTrackMentions(ctx, progress, artists)
	if err != nil {
		return nil, err
	}

	res, err := e.Resolve(ctx, progress, mentions)
	if err != nil {
		return nil, err
	}

	result := &PlaylistResult{
		Tracks:     res.Tracks,
		Requested:  res.Requested,
		Unresolved: res.Unresolved,
		Mentions:   res.Outcomes,
	}
	return e.create(ctx, progress, mode, req, result)
}

// create makes the playlist and adds every track in one call. Playlist writes are not retried.
func (e *PlaylistEngine) create(ctx context.Context, progress chan<- ProgressUpdate, mode string, req PlaylistRequest, result *PlaylistResult) (*PlaylistResult, error) {
	if len(result.Tracks) == 0 {
		e.logger.Warn("nothing to add", "mode", mode, "requested", result.Requested)
		return result, fmt.Errorf("%w: %d requested, %d unresolved", shared.ErrNoTracks, result.Requested, result.Unresolved)
	}

	description := req.Description
	if description == "" {
		description = DefaultDescription
	}

	e.sendProgress(progress, createPlaylistUpdate(1, 2, nil))
	pl, err := e.catalog.CreatePlaylist(ctx, req.Name, description, req.Public)
	if err != nil {
		return result, fmt.Errorf("failed to create playlist: %w", err)
	}
	result.Playlist = pl
	e.sendProgress(progress, createPlaylistUpdate(2, 2, pl))

	if err := e.catalog.AddTracks(ctx, pl.ID, resolver.URIs(result.Tracks)); err != nil {
		return result, fmt.Errorf("failed to add tracks to playlist %s: %w", pl.ID, err)
	}
	pl.TrackCount = len(result.Tracks)
	e.sendProgress(progress, addTracksUpdate(1, 1, len(result.Tracks)))

	e.logger.Info("playlist created", "mode", mode, "playlist", pl.ID, "tracks", len(result.Tracks), "unresolved", result.Unresolved)

	tracks := make([]models.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		tracks = append(tracks, *t)
	}
	result.Run = models.NewRun(mode, pl, result.Requested, result.Unresolved, tracks)

	if e.recorder != nil {
		if err := e.recorder.Create(result.Run); err != nil {
			e.logger.Warn("failed to record run", "playlist", pl.ID, "error", err)
		}
	}
	return result, nil
}

// call retries op against the discovery source. Auth failures and cancellation are returned; other failures count as no data.
func (e *PlaylistEngine) call(ctx context.Context, name string, op func(ctx context.Context) ([]string, error)) ([]string, error) {
	names, err := retry.Value(ctx, e.retry, name, op)
	if err == nil {
		return names, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if shared.IsAuthError(err) {
		return nil, err
	}
	e.logger.Debug("lookup failed", "call", name, "error", err)
	return nil, nil
}

func checkName(req PlaylistRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}
	return nil
}
