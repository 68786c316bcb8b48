// Package models defines the entities shared by the resolution engine, its service clients and the run log.
//
// Catalog data:
//   - [Track] : a catalog track with its credited [Artist] list, URI, duration and playability
//   - [Playlist] : a playlist created in the catalog
//
// Resolution data:
//   - [ParsedMention] : the title/artist split of a free-text mention
//   - [SimilarArtists] : the ordered similar-artist set for one seed, tagged with the [Tier] that produced it
//
// Persistence:
//   - [Run] and [RunTrack] : the summary of a created playlist kept by the repositories package
package models
