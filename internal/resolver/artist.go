package resolver

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSimilarLimit = 10
	DefaultTagsPerSeed  = 3
	DefaultSeedWorkers  = 5
)

// ArtistIndex is the similarity and tag source the artist resolver depends on.
type ArtistIndex interface {
	SimilarArtists(ctx context.Context, artist string, limit int) ([]string, error)
	SearchArtists(ctx context.Context, name string) ([]string, error)
	ArtistExists(ctx context.Context, name string) (bool, error)
	ArtistTopTags(ctx context.Context, artist string, limit int) ([]string, error)
	TagTopArtists(ctx context.Context, tag string, limit int) ([]string, error)
}

// ArtistOpts configures an [ArtistResolver].
type ArtistOpts struct {
	Limit       int // Similar artists per seed (default 10)
	TagsPerSeed int // Tags used by the tag fallback (default 3)
	Workers     int // Seeds resolved at once by SimilarForSeeds (default 5)
	Cache       *cache.Cache
	Retry       *retry.Executor
	Logger      *log.Logger
}

// ArtistResolver finds artists similar to a seed through a chain of fallbacks:
//
//  1. the name as given
//  2. the canonical spelling found by artist search
//  3. mechanical variants of the name
//  4. an existence check, logged only
//  5. the top artists of the seed's top tags
//
// The first non-empty tier wins. An empty result is a normal outcome.
type ArtistResolver struct {
	index       ArtistIndex
	cache       *cache.Cache
	retry       *retry.Executor
	limit       int
	tagsPerSeed int
	workers     int
	logger      *log.Logger
}

// NewArtistResolver creates a resolver over index.
func NewArtistResolver(index ArtistIndex, opts ArtistOpts) (*ArtistResolver, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: artist resolver needs a similarity index", shared.ErrInvalidConfig)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSimilarLimit
	}
	if opts.TagsPerSeed <= 0 {
		opts.TagsPerSeed = DefaultTagsPerSeed
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultSeedWorkers
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

	return &ArtistResolver{
		index:       index,
		cache:       opts.Cache,
		retry:       opts.Retry,
		limit:       opts.Limit,
		tagsPerSeed: opts.TagsPerSeed,
		workers:     opts.Workers,
		logger:      shared.WithLogger(opts.Logger, "component", "artist-resolver"),
	}, nil
}

// Similar returns the artists similar to artist. Errors are limited to auth failures and cancellation.
func (r *ArtistResolver) Similar(ctx context.Context, artist string) (*models.SimilarArtists, error) {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return &models.SimilarArtists{}, nil
	}

	if set, ok := r.cache.Similar(artist); ok {
		return set, nil
	}

	set, err := r.resolve(ctx, artist)
	if err != nil {
		return nil, err
	}
	r.cache.StoreSimilar(artist, set)
	return set, nil
}

func (r *ArtistResolver) resolve(ctx context.Context, artist string) (*models.SimilarArtists, error) {
	found := func(names []string, canonical string, tier models.Tier) *models.SimilarArtists {
		r.logger.Debug("similar artists found", "artist", artist, "tier", tier, "count", len(names))
		return &models.SimilarArtists{Artist: artist, Canonical: canonical, Names: names, Tier: tier}
	}

	names, err := r.similar(ctx, artist)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		return found(names, "", models.TierDirect), nil
	}

	tried := map[string]struct{}{artist: {}}

	canonical, err := r.canonical(ctx, artist)
	if err != nil {
		return nil, err
	}
	if canonical != "" && canonical != artist {
		tried[canonical] = struct{}{}
		names, err := r.similar(ctx, canonical)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return found(names, canonical, models.TierCanonical), nil
		}
	}

	for _, v := range Variants(artist) {
		if _, done := tried[v]; done {
			continue
		}
		tried[v] = struct{}{}

		names, err := r.similar(ctx, v)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return found(names, v, models.TierVariant), nil
		}
	}

	r.checkExists(ctx, artist)

	names, err = r.byTags(ctx, artist)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		return found(names, "", models.TierTags), nil
	}

	r.logger.Debug("no similar artists", "artist", artist)
	return &models.SimilarArtists{Artist: artist}, nil
}

// similar runs the direct lookup, keeping distinct names up to the limit.
func (r *ArtistResolver) similar(ctx context.Context, name string) ([]string, error) {
	names, err := r.lookup(ctx, "similar", func(ctx context.Context) ([]string, error) {
		return r.index.SimilarArtists(ctx, name, r.limit)
	})
	if err != nil {
		return nil, err
	}
	return MergeNames([][]string{names}, nil, r.limit), nil
}

// canonical picks the search result matching name exactly, then ignoring case, then the first result.
func (r *ArtistResolver) canonical(ctx context.Context, name string) (string, error) {
	matches, err := r.lookup(ctx, "artist-search", func(ctx context.Context) ([]string, error) {
		return r.index.SearchArtists(ctx, name)
	})
	if err != nil || len(matches) == 0 {
		return "", err
	}

	for _, m := range matches {
		if m == name {
			return m, nil
		}
	}
	for _, m := range matches {
		if strings.EqualFold(m, name) {
			return m, nil
		}
	}
	return matches[0], nil
}

// checkExists logs whether the similarity source knows the artist at all.
func (r *ArtistResolver) checkExists(ctx context.Context, artist string) {
	exists, err := retry.Value(ctx, r.retry, "artist-exists", func(ctx context.Context) (bool, error) {
		return r.index.ArtistExists(ctx, artist)
	})
	switch {
	case err != nil:
		r.logger.Debug("existence check failed", "artist", artist, "error", err)
	case exists:
		r.logger.Debug("artist known but has no similar artists", "artist", artist)
	default:
		r.logger.Debug("artist unknown to similarity source", "artist", artist)
	}
}

// byTags merges the top artists of the seed's top tags, excluding the seed.
func (r *ArtistResolver) byTags(ctx context.Context, artist string) ([]string, error) {
	tags, err := r.lookup(ctx, "artist-tags", func(ctx context.Context) ([]string, error) {
		return r.index.ArtistTopTags(ctx, artist, r.tagsPerSeed)
	})
	if err != nil || len(tags) == 0 {
		return nil, err
	}
	if len(tags) > r.tagsPerSeed {
		tags = tags[:r.tagsPerSeed]
	}

	perTag := make([][]string, 0, len(tags))
	for _, tag := range tags {
		names, err := r.lookup(ctx, "tag-artists", func(ctx context.Context) ([]string, error) {
			return r.index.TagTopArtists(ctx, tag, 0)
		})
		if err != nil {
			return nil, err
		}
		perTag = append(perTag, names)
	}
	return MergeNames(perTag, []string{artist}, r.limit), nil
}

// lookup retries op. Auth failures and cancellation are returned; any other failure counts as no data.
func (r *ArtistResolver) lookup(ctx context.Context, name string, op func(ctx context.Context) ([]string, error)) ([]string, error) {
	names, err := retry.Value(ctx, r.retry, name, op)
	if err == nil {
		return names, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if shared.IsAuthError(err) {
		r.logger.Error("similarity source rejected credentials", "call", name, "error", err)
		return nil, err
	}
	r.logger.Debug("lookup failed", "call", name, "error", err)
	return nil, nil
}

// SimilarForSeeds resolves seeds concurrently and returns one set per seed, in seed order.
// The first auth failure cancels the remaining seeds.
func (r *ArtistResolver) SimilarForSeeds(ctx context.Context, seeds []string) ([]*models.SimilarArtists, error) {
	sets := make([]*models.SimilarArtists, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, seed := range seeds {
		g.Go(func() error {
			set, err := r.Similar(gctx, seed)
			if err != nil {
				return err
			}
			sets[i] = set
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// Variants returns the mechanical respellings tried for an artist, in order:
// "&" as "and", punctuation removed, lowercase, uppercase and accents folded.
// Empty results and repeats of earlier entries or of the name itself are dropped.
func Variants(artist string) []string {
	candidates := []string{
		strings.ReplaceAll(artist, "&", "and"),
		stripPunctuation(artist),
		strings.ToLower(artist),
		strings.ToUpper(artist),
		shared.FoldDiacritics(artist),
	}

	seen := map[string]struct{}{artist: {}}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func stripPunctuation(s string) string {
	kept := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(kept), " ")
}

// MergeNames concatenates lists in order, dropping blanks, case-insensitive repeats and any name in exclude,
// and truncates to limit. A limit of zero or less keeps everything.
func MergeNames(lists [][]string, exclude []string, limit int) []string {
	seen := make(map[string]struct{})
	for _, name := range exclude {
		seen[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var out []string
	for _, list := range lists {
		for _, name := range list {
			name = strings.TrimSpace(name)
			key := strings.ToLower(name)
			if name == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}
