// Package tasks runs the now-playing integration: polling, transition detection and color caching.
//
// # Polling
//
// [Poller] calls the provider at most once per interval and never faster than the request floor.
// A 429 opens a backoff window of Retry-After seconds during which no request is sent, and a 401
// invalidates the access token so the next poll re-acquires one. Failures are counted, never returned.
//
// # Transitions
//
// Each poll's snapshot is compared with the previous one by [Classify]:
//
//  1. [TrackChanged] : a new track id appeared (including after a stop)
//  2. [Stopped] : the provider reported nothing playing
//  3. [PlaystateChanged] : same track, play/pause flipped
//
// Listeners run synchronously, in subscription order, outside the poll lock. A panicking listener
// is logged and skipped. [ChannelListener] forwards transitions without blocking, dropping them
// while the channel is full.
//
// # Colors
//
// [ColorCache] subscribes to the poller. A track change drops every entry and extracts the new
// artwork eagerly; concurrent misses for one track share a single extraction. Anything that is not
// a playing track with usable artwork resolves to the fallback color.
//
// # Facade
//
// [Integration] bundles the pieces behind the calls consumers need. [New] builds it from a
// [shared.Config].
package tasks
