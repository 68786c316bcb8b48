package tasks

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/resolver"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/shared"
	"golang.org/x/sync/errgroup"
)

type resolveJob struct {
	index   int
	mention string
}

type resolveJobResult struct {
	index int
	match *resolver.Match
	err   error
}

// Resolve resolves every mention on a fixed pool of workers and waits for all of them, up to the engine timeout.
//
// Mentions that differ only in case or spacing share one resolution. Mentions not finished at the deadline are
// abandoned: queued ones are never started, calls already in flight run to completion and their results are
// dropped. Misses and failed lookups are counted as unresolved. An auth failure cancels the fan-out and is
// returned. Blank mentions are ignored.
func (e *PlaylistEngine) Resolve(ctx context.Context, progress chan<- ProgressUpdate, mentions []string) (*ResolveResult, error) {
	clean := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if m = strings.TrimSpace(m); m != "" {
			clean = append(clean, m)
		}
	}

	total := len(clean)
	outcomes := make([]Outcome, total)
	owner := make([]int, total)
	firstByKey := make(map[string]int, total)
	var queue []resolveJob
	for i, m := range clean {
		outcomes[i] = Outcome{Mention: m}

		parsed := resolver.ParseMention(m)
		key := shared.NormalizeTrackKey(parsed.Title, parsed.Artist)
		if first, ok := firstByKey[key]; ok {
			owner[i] = first
			continue
		}
		firstByKey[key] = i
		owner[i] = i
		queue = append(queue, resolveJob{index: i, mention: m})
	}

	result := &ResolveResult{Requested: total, Outcomes: outcomes}
	if total == 0 {
		return result, nil
	}

	pending := len(queue)
	e.sendProgress(progress, resolveStartUpdate(pending))

	fanCtx, cancel := context.WithCancel(ctx)
	abandoned := make(chan struct{})

	jobs := make(chan resolveJob, pending)
	results := make(chan resolveJobResult, pending)

	var wg sync.WaitGroup
	for range min(e.workers, pending) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-abandoned:
					return
				default:
				}
				if fanCtx.Err() != nil {
					return
				}
				match, err := e.tracks.Resolve(fanCtx, job.mention)
				results <- resolveJobResult{index: job.index, match: match, err: err}
			}
		}()
	}

	for _, job := range queue {
		jobs <- job
	}
	close(jobs)

	// Stragglers keep fanCtx until they return.
	go func() {
		wg.Wait()
		cancel()
		close(results)
	}()

	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()

	finished := make([]bool, total)
	completed := 0

collect:
	for completed < pending {
		select {
		case r, ok := <-results:
			if !ok {
				break collect
			}
			if r.err != nil && shared.IsAuthError(r.err) && ctx.Err() == nil {
				cancel()
				e.logger.Error("resolution aborted", "mention", clean[r.index], "error", r.err)
				return nil, r.err
			}

			completed++
			finished[r.index] = true
			outcome := &outcomes[r.index]
			switch {
			case r.err != nil:
				outcome.Err = r.err
				e.logger.Warn("mention failed", "mention", outcome.Mention, "error", r.err)
			case r.match == nil:
				e.logger.Debug("mention unresolved", "mention", outcome.Mention)
			default:
				outcome.Track = r.match.Track
				outcome.Strategy = r.match.Strategy
			}
			e.sendProgress(progress, resolveUpdate(completed, pending, *outcome))
		case <-deadline.C:
			close(abandoned)
			e.logger.Warn("resolution deadline reached", "timeout", e.timeout, "completed", completed, "total", pending)
			break collect
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := make([]*models.Track, 0, total)
	for i := range outcomes {
		if first := owner[i]; first != i {
			finished[i] = finished[first]
			outcomes[i].Track = outcomes[first].Track
			outcomes[i].Strategy = outcomes[first].Strategy
			outcomes[i].Err = outcomes[first].Err
		}
		if !finished[i] {
			outcomes[i].TimedOut = true
			result.TimedOut++
		}
		if outcomes[i].Resolved() {
			matched = append(matched, outcomes[i].Track)
		} else {
			result.Unresolved++
		}
	}
	result.Tracks = resolver.Filter(matched, e.playlistSize)

	e.logger.Debug("resolution finished", "requested", total, "tracks", len(result.Tracks), "unresolved", result.Unresolved, "timed_out", result.TimedOut)
	return result, nil
}

// Lookup fetches the tracks behind catalog ids and returns the valid ones in input order, with the number of
// entries that were malformed or not found.
//
// Cached tracks are not fetched again. The remaining distinct ids are requested in batches of the engine batch
// size, pausing between batches. A batch that fails after retries is skipped.
func (e *PlaylistEngine) Lookup(ctx context.Context, progress chan<- ProgressUpdate, ids []string) ([]*models.Track, int, error) {
	parsed := make([]string, len(ids))
	found := make(map[string]*models.Track)
	seen := make(map[string]struct{})
	var missing []string

	for i, raw := range ids {
		id, ok := ParseTrackID(raw)
		if !ok {
			e.logger.Debug("not a track id", "input", raw)
			continue
		}
		parsed[i] = id

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if t, ok := e.cache.Track(id); ok {
			found[id] = t
			continue
		}
		missing = append(missing, id)
	}

	batches := chunk(missing, e.batchSize)
	for i, batch := range batches {
		if i > 0 && e.batchDelay > 0 {
			select {
			case <-e.clock.After(e.batchDelay):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
		e.sendProgress(progress, lookupUpdate(i+1, len(batches), len(batch)))

		fetched, err := retry.Value(ctx, e.retry, "several-tracks", func(ctx context.Context) ([]*models.Track, error) {
			return e.catalog.SeveralTracks(ctx, batch)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			if shared.IsAuthError(err) {
				return nil, 0, err
			}
			e.logger.Warn("track batch failed", "batch", i+1, "size", len(batch), "error", err)
			continue
		}

		for j, t := range fetched {
			if j >= len(batch) || t == nil {
				continue
			}
			e.cache.StoreTrack(t)
			found[batch[j]] = t
		}
	}

	unresolved := 0
	ordered := make([]*models.Track, 0, len(ids))
	for _, id := range parsed {
		t := found[id]
		if id == "" || t == nil {
			unresolved++
			continue
		}
		ordered = append(ordered, t)
	}
	return resolver.Filter(ordered, e.playlistSize), unresolved, nil
}

// topTrackMentions fetches the top tracks of each artist and returns "Title - Artist" mentions interleaved by rank.
//
// Each artist contributes at most [PlaylistEngine.artistQuota] tracks.
func (e *PlaylistEngine) topTrackMentions(ctx context.Context, progress chan<- ProgressUpdate, artists []string) ([]string, error) {
	titles := make([][]string, len(artists))
	quota := e.artistQuota(len(artists))
	var step atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, artist := range artists {
		g.Go(func() error {
			names, err := e.call(gctx, "top-tracks", func(ctx context.Context) ([]string, error) {
				return e.discovery.ArtistTopTracks(ctx, artist, quota)
			})
			if err != nil {
				return err
			}
			if len(names) > quota {
				names = names[:quota]
			}
			titles[i] = names
			e.sendProgress(progress, topTracksUpdate(int(step.Add(1)), len(artists), artist, len(names)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mentions []string
	for rank := range quota {
		for i, artist := range artists {
			if rank < len(titles[i]) && strings.TrimSpace(titles[i][rank]) != "" {
				mentions = append(mentions, titles[i][rank]+" - "+artist)
			}
		}
	}
	return mentions, nil
}

// artistQuota is the number of top tracks taken per artist: an even share of the playlist, between one and the
// configured tracks per artist.
func (e *PlaylistEngine) artistQuota(artists int) int {
	if artists <= 0 {
		return e.tracksPerArtist
	}
	return max(1, min(e.tracksPerArtist, e.playlistSize/artists))
}

// TrackIDLength is the length of a base62 catalog track id.
const TrackIDLength = 22

// ParseTrackID extracts a catalog id from a bare id, a spotify:track: URI or an open.spotify.com track link.
//
// Ids that are not 22 base62 characters are rejected, since one bad id makes the catalog refuse a whole batch.
func ParseTrackID(s string) (string, bool) {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "spotify:track:"):
		s = strings.TrimPrefix(s, "spotify:track:")
	case strings.Contains(s, "open.spotify.com/"):
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return "", false
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "track" {
			return "", false
		}
		s = parts[len(parts)-1]
	}

	if len(s) != TrackIDLength {
		return "", false
	}
	for _, r := range s {
		if !isBase62(r) {
			return "", false
		}
	}
	return s, true
}

func isBase62(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
