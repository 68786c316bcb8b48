// package models defines the data model for the playlist generation engine
package models

import (
	"fmt"
	"strings"
	"time"
)

// Artist is a catalog artist credited on a track.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// Track is a catalog track. Tracks are shared between the cache and callers and must not be mutated after they are fetched.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      string   `json:"album,omitempty"`
	URI        string   `json:"uri"`
	DurationMS int      `json:"duration_ms"`
	IsPlayable bool     `json:"is_playable"`
	ISRC       string   `json:"isrc,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
}

// ArtistNames returns the credited artist names in billing order.
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// PrimaryArtist returns the first credited artist, or "" when there is none.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// Duration returns the track length.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s", strings.Join(t.ArtistNames(), ", "), t.Name)
}

// ParsedMention is the best-effort split of a free-text mention. Artist may be empty.
type ParsedMention struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Playlist is a playlist created in the catalog.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	URL         string `json:"url,omitempty"`
	Public      bool   `json:"public"`
	TrackCount  int    `json:"track_count"`
}

// Tier records which fallback produced a set of similar artists.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierCanonical
	TierVariant
	TierTags
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierCanonical:
		return "canonical"
	case TierVariant:
		return "variant"
	case TierTags:
		return "tags"
	default:
		return "none"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// SimilarArtists is the ordered, distinct set of artists similar to one seed.
type SimilarArtists struct {
	Artist    string   `json:"artist"`
	Canonical string   `json:"canonical,omitempty"`
	Names     []string `json:"names"`
	Tier      Tier     `json:"tier"`
}

// Empty reports whether no similar artist was found.
func (s *SimilarArtists) Empty() bool {
	return s == nil || len(s.Names) == 0
}
