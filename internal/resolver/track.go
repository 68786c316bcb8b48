// package resolver maps free-text track and artist mentions to catalog entities
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
)

// Searcher is the catalog search the track resolver depends on.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Track, error)
}

// Strategy names the query form that produced a match.
type Strategy string

const (
	StrategyCache      Strategy = "cache"
	StrategyFull       Strategy = "full"
	StrategyQuoted     Strategy = "quoted"
	StrategyStructured Strategy = "structured"
	StrategySanitized  Strategy = "sanitized"
)

// Match is a resolved mention.
type Match struct {
	Mention  string        `json:"mention"`
	Track    *models.Track `json:"track"`
	Strategy Strategy      `json:"strategy"`
	Cached   bool          `json:"cached"`
}

// TrackOpts configures a [TrackResolver].
type TrackOpts struct {
	Cache  *cache.Cache
	Retry  *retry.Executor
	Logger *log.Logger
}

// TrackResolver resolves one mention to at most one valid catalog track.
type TrackResolver struct {
	catalog Searcher
	cache   *cache.Cache
	retry   *retry.Executor
	logger  *log.Logger
}

// NewTrackResolver creates a resolver over catalog. A nil cache or executor is replaced by a default one.
func NewTrackResolver(catalog Searcher, opts TrackOpts) (*TrackResolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: track resolver needs a catalog", shared.ErrInvalidConfig)
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
	return &TrackResolver{
		catalog: catalog,
		cache:   opts.Cache,
		retry:   opts.Retry,
		logger:  shared.WithLogger(opts.Logger, "component", "track-resolver"),
	}, nil
}

type searchQuery struct {
	strategy Strategy
	query    string
}

// queries builds the strategy chain for mention, dropping empty and repeated query strings.
func queries(mention string) []searchQuery {
	chain := []searchQuery{
		{StrategyFull, mention},
		{StrategyQuoted, `"` + mention + `"`},
	}
	if parsed := ParseMention(mention); parsed.Artist != "" {
		chain = append(chain, searchQuery{
			StrategyStructured,
			`track:"` + parsed.Title + `" artist:"` + parsed.Artist + `"`,
		})
	}
	chain = append(chain, searchQuery{StrategySanitized, strings.TrimSpace(strings.ReplaceAll(mention, `"`, ""))})

	seen := make(map[string]struct{}, len(chain))
	out := chain[:0]
	for _, q := range chain {
		if strings.Trim(q.query, `" `) == "" {
			continue
		}
		if _, dup := seen[q.query]; dup {
			continue
		}
		seen[q.query] = struct{}{}
		out = append(out, q)
	}
	return out
}

// Resolve returns the first valid top hit of the strategy chain, or nil when every strategy came up empty.
//
// A strategy that fails after retries, returns nothing, or whose top hit is invalid hands over to the next one.
// Only auth failures and cancellation are returned as errors. Misses are not cached.
func (r *TrackResolver) Resolve(ctx context.Context, mention string) (*Match, error) {
	if strings.TrimSpace(mention) == "" {
		return nil, nil
	}

	if track, ok := r.cache.SearchResult(mention); ok {
		return &Match{Mention: mention, Track: track, Strategy: StrategyCache, Cached: true}, nil
	}

	for _, q := range queries(mention) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tracks, err := retry.Value(ctx, r.retry, "search:"+string(q.strategy), func(ctx context.Context) ([]models.Track, error) {
			return r.catalog.Search(ctx, q.query)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if shared.IsAuthError(err) {
				r.logger.Error("catalog rejected credentials", "mention", mention, "error", err)
				return nil, err
			}
			r.logger.Debug("strategy failed", "mention", mention, "strategy", q.strategy, "error", err)
			continue
		}

		if len(tracks) == 0 {
			r.logger.Debug("strategy found nothing", "mention", mention, "strategy", q.strategy)
			continue
		}

		top := tracks[0]
		if err := Validate(&top); err != nil {
			r.logger.Debug("top hit rejected", "mention", mention, "strategy", q.strategy, "track", top.String(), "reason", err)
			continue
		}

		r.cache.StoreSearchResult(mention, &top)
		return &Match{Mention: mention, Track: &top, Strategy: q.strategy}, nil
	}

	r.logger.Debug("mention unresolved", "mention", mention)
	return nil, nil
}
