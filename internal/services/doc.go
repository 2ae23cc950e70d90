// Package services implements the provider side of melodyhue: everything that makes an HTTP call to Spotify.
//
// # Token lifecycle
//
// [TokenStore] owns the OAuth credentials. It supports three grants, tried in order by [TokenStore.Acquire]:
//
//  1. reuse of the current (or persisted) access token while it is unexpired
//  2. the refresh-token grant, when a refresh token is known
//  3. the client-credentials grant
//
// Exchanges go through [golang.org/x/oauth2] with client credentials in the Authorization header.
// Issued tokens expire 60 seconds before Spotify says they do.
// When Spotify rotates the refresh token the injected [RotationListener] is told about it.
//
// Tokens are mirrored to a JSON file by [TokenFile] after every successful exchange and read back once when the
// store is built.
//
// # Playback
//
// [PlaybackClient] calls GET /me/player/currently-playing and maps the response into a [models.TrackSnapshot]:
//   - 200 with an item: a playing or paused track
//   - 204, or 200 without an item: a stopped snapshot
//   - 429: a [*RateLimitError] carrying Retry-After
//   - 401: [shared.ErrNotAuthenticated]
//   - anything else: [shared.ErrTransient]
//
// # Artwork
//
// [ArtworkExtractor] downloads cover art and reduces it to one color with k-means clustering
// ([github.com/muesli/kmeans]). Images with few distinct colors skip clustering.
//
// # Error Handling
//
// Helpers return errors wrapping the sentinels in [shared]. Public [TokenStore] methods log and return booleans.
package services
