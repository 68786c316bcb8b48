// Package services implements the external API clients the resolution engine depends on.
//
// # Spotify
//
// [SpotifyService] is the catalog: track search, batched track lookups and playlist creation.
// It authenticates with the OAuth2 authorization code flow (user token, required for playlist writes)
// or the client credentials flow (app token, enough for lookups). Expired user tokens are refreshed by the
// [oauth2.Client] and handed to the callback set with [SpotifyService.SetTokenRefreshCallback].
//
// # Last.fm
//
// [LastfmService] is the similarity and tag source. It is keyed by a static API key and wraps
// github.com/shkh/lastfm-go in a circuit breaker.
//
// # Rate Limits
//
// Each service takes its own [ratelimit.Limiter]. Every request waits on it before touching the network.
//
// # Error Handling
//
// Failed calls return an [*APIError] that unwraps to a shared sentinel:
//   - [shared.ErrTokenExpired] : 401, reauthorization needed
//   - [shared.ErrAuthFailed] : 403
//   - [shared.ErrRateLimited] : 429, temporary
//   - [shared.ErrServiceUnavailable] : 5xx or an open circuit breaker
//   - [shared.ErrAPIRequest] : transport failures (temporary) and other 4xx
//
// [APIError.Temporary] tells the retry layer whether another attempt may succeed.
// Invalid Last.fm API keys map to [shared.ErrInvalidCredentials], unknown artists to empty results.
package services
