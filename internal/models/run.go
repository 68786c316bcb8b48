package models

import (
	"fmt"
	"time"
)

// Run mode values
const (
	ModeMentions = "mentions"
	ModeURIs     = "uris"
	ModeArtists  = "artists"
	ModeTags     = "tags"
)

// Run is the persisted summary of one created playlist.
type Run struct {
	ID           string     `json:"id"`
	Mode         string     `json:"mode"`
	PlaylistID   string     `json:"playlist_id"`
	PlaylistName string     `json:"playlist_name"`
	PlaylistURI  string     `json:"playlist_uri"`
	Requested    int        `json:"requested"`
	Resolved     int        `json:"resolved"`
	Unresolved   int        `json:"unresolved"`
	CreatedAt    time.Time  `json:"created_at"`
	Tracks       []RunTrack `json:"tracks,omitempty"`
}

// RunTrack is one entry of a run's playlist, in insertion order.
type RunTrack struct {
	Position int    `json:"position"`
	TrackID  string `json:"track_id"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
}

// NewRun builds a run summary for a created playlist and its tracks.
func NewRun(mode string, pl *Playlist, requested, unresolved int, tracks []Track) *Run {
	run := &Run{
		Mode:       mode,
		Requested:  requested,
		Resolved:   len(tracks),
		Unresolved: unresolved,
		CreatedAt:  time.Now().UTC(),
		Tracks:     make([]RunTrack, 0, len(tracks)),
	}
	if pl != nil {
		run.PlaylistID = pl.ID
		run.PlaylistName = pl.Name
		run.PlaylistURI = pl.URI
	}
	for i, t := range tracks {
		run.Tracks = append(run.Tracks, RunTrack{
			Position: i,
			TrackID:  t.ID,
			URI:      t.URI,
			Name:     t.Name,
			Artist:   t.PrimaryArtist(),
		})
	}
	return run
}

// Validate checks the fields the run log requires.
func (r *Run) Validate() error {
	switch r.Mode {
	case ModeMentions, ModeURIs, ModeArtists, ModeTags:
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	if r.PlaylistID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if r.PlaylistName == "" {
		return fmt.Errorf("playlist name is required")
	}
	if r.Requested < 0 || r.Resolved < 0 || r.Unresolved < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	return nil
}
