// Package models defines the domain types shared by the melodyhue integration.
//
// The package contains two categories of types:
//
// 1. Provider state: values describing what the streaming provider reported
//   - [Credentials] : OAuth client identity and the current token pair
//   - [TrackSnapshot] : One "now playing" response, immutable once published
//
// 2. Derived state: values computed by the integration itself
//   - [RGB] : A dominant artwork color with strict hex parsing via [ParseHex]
//   - [CacheEntry] : An extracted color for one track and the instant it was extracted
//   - [Stats] : Lifetime counters reported by the facade
//   - [Play] : A persisted play history row
//
// Snapshots are replaced wholesale by the poller; callers may hold on to a pointer without
// synchronization because nothing mutates a snapshot after it has been published.
package models
