// Package server runs the short-lived HTTP server that completes the Spotify login.
//
// # OAuth Callback
//
// [OAuthHandler] serves the redirect path of the OAuth2 config. It checks the state parameter against the
// value sent with the authorization URL, exchanges the code for a token and delivers the result on a
// channel. Only the first callback is processed.
//
// [CallbackServer] listens on the configured host and port, serves the handler behind a [BasicRouter] and
// shuts down once a result, an error, the timeout or cancellation arrives.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with method filtering and a [Middleware] stack. [RequestLogger] logs
// method, path, status and latency for each request.
package server
