// Package tasks assembles playlists from recommendation output with real-time progress reporting.
//
// # Core Operations
//
// [PlaylistEngine] builds a playlist in one of four modes:
//
//  1. [PlaylistEngine.Run] : free-text mentions
//     - Resolves every mention on a fixed worker pool (default 5)
//     - Waits for all of them up to a deadline (default 15s), abandoning stragglers
//     - Validates, deduplicates by catalog id and caps the list (default 30)
//     - Creates the playlist and adds every URI in a single call
//
//  2. [PlaylistEngine.RunURIs] : catalog ids, URIs or links
//     - Serves known ids from the cache
//     - Fetches the rest in batches of 20 with a 200ms pause between batches
//
//  3. [PlaylistEngine.RunArtists] : seed artists
//     - Expands the seeds with similar artists
//     - Turns each artist's top tracks into mentions, interleaved by rank
//
//  4. [PlaylistEngine.RunTags] : tags
//     - Uses the top artists of each tag, then proceeds as the artist mode
//
// A run that resolves nothing returns [shared.ErrNoTracks] along with the partial result; no empty playlist
// is created. Auth failures and cancellation abort a run. Every other failure only lowers the track count.
//
// # Progress Reporting
//
// All operations accept an optional channel of [ProgressUpdate] values. Updates use select with default
// so a slow reader never blocks the engine.
//
// # Run Log
//
// The optional [RunRecorder] receives a [models.Run] for each created playlist. Recording errors are logged
// and otherwise ignored.
package tasks
