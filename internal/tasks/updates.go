package tasks

import (
	"fmt"

	"github.com/desertthunder/playgen/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FindArtists Phase = iota
	FetchTopTracks
	ResolveTracks
	LookupTracks
	CreatePlaylist
	AddTracks
)

func (p Phase) String() string {
	switch p {
	case FindArtists:
		return "find_artists"
	case FetchTopTracks:
		return "fetch_top_tracks"
	case ResolveTracks:
		return "resolve_tracks"
	case LookupTracks:
		return "lookup_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	default:
		return ""
	}
}

func findArtistsUpdate(step, total int, set *models.SimilarArtists) ProgressUpdate {
	if set == nil {
		return ProgressUpdate{
			Phase:   FindArtists,
			Step:    step,
			Total:   total,
			Message: "Finding similar artists...",
		}
	}
	return ProgressUpdate{
		Phase:   FindArtists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %d similar (%s)", step, total, set.Artist, len(set.Names), set.Tier),
		Data:    set,
	}
}

func historyArtistsUpdate(timeRange models.TimeRange, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FindArtists,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Listening history (%s): %d artists", timeRange.Description(), count),
	}
}

func tagArtistsUpdate(step, total int, tag string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FindArtists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Tag %s: %d artists", step, total, tag, count),
	}
}

func topTracksUpdate(step, total int, artist string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTopTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %d top tracks", step, total, artist, count),
	}
}

func resolveStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d mentions...", total),
	}
}

func resolveUpdate(step, total int, outcome Outcome) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✗ %s", step, total, outcome.Mention)
	if outcome.Track != nil {
		msg = fmt.Sprintf("[%d/%d] ✓ %s → %s (%s)", step, total, outcome.Mention, outcome.Track, outcome.Strategy)
	}
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    outcome,
	}
}

func lookupUpdate(step, total, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching details for %d tracks...", step, total, size),
	}
}

func createPlaylistUpdate(step, total int, pl *models.Playlist) ProgressUpdate {
	if pl == nil {
		return ProgressUpdate{
			Phase:   CreatePlaylist,
			Step:    step,
			Total:   total,
			Message: "Creating playlist...",
		}
	}
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func addTracksUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Added %d tracks", count),
	}
}
