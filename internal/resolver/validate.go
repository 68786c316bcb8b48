package resolver

import (
	"errors"
	"strings"

	"github.com/desertthunder/playgen/internal/models"
)

const (
	// MinDurationMS rejects previews and snippets. A track must be strictly longer.
	MinDurationMS = 30_000
	// DefaultPlaylistSize caps the assembled playlist.
	DefaultPlaylistSize = 30
)

// Reasons a track is rejected by [Validate].
var (
	ErrEmptyName   = errors.New("track has no name")
	ErrNoArtists   = errors.New("track has no artists")
	ErrNoURI       = errors.New("track has no catalog id or uri")
	ErrTooShort    = errors.New("track is 30 seconds or shorter")
	ErrNotPlayable = errors.New("track is not playable in the market")
)

// Validate returns nil when t can go into a playlist, otherwise the first failed rule.
func Validate(t *models.Track) error {
	switch {
	case t == nil || strings.TrimSpace(t.Name) == "":
		return ErrEmptyName
	case len(t.Artists) == 0:
		return ErrNoArtists
	case t.ID == "" || t.URI == "":
		return ErrNoURI
	case t.DurationMS <= MinDurationMS:
		return ErrTooShort
	case !t.IsPlayable:
		return ErrNotPlayable
	}
	return nil
}

// IsValid reports whether [Validate] accepts t.
func IsValid(t *models.Track) bool {
	return Validate(t) == nil
}

// Filter keeps valid tracks, drops repeated catalog ids after their first occurrence and truncates to limit.
// Input order is preserved. A limit of zero or less uses [DefaultPlaylistSize].
func Filter(tracks []*models.Track, limit int) []*models.Track {
	if limit <= 0 {
		limit = DefaultPlaylistSize
	}

	seen := make(map[string]struct{}, len(tracks))
	out := make([]*models.Track, 0, min(len(tracks), limit))
	for _, t := range tracks {
		if len(out) == limit {
			break
		}
		if !IsValid(t) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// URIs returns the catalog uris of tracks in order.
func URIs(tracks []*models.Track) []string {
	uris := make([]string, 0, len(tracks))
	for _, t := range tracks {
		uris = append(uris, t.URI)
	}
	return uris
}
