// Package server provides the local HTTP listener that completes interactive Spotify authorization.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [LoggingMiddleware] and [RecoveryMiddleware] log through charmbracelet/log.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, hands the authorization code to a [CodeExchanger]
// and sends a single result through a channel. Only the first callback is processed.
//
// The login command starts [Serve] on the redirect URI's host and port, opens the consent page,
// waits for the result and shuts the listener down.
package server
