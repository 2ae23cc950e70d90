// Package repositories implements SQLite persistence for play history.
//
// Key Implementations:
//   - [PlayRepository] : one row per observed track change, with the artwork color once known
//   - [HistoryRecorder] : transition and extraction listener that feeds [PlayRepository]
//
// Sequence numbers give plays a stable order independent of UUIDs and capture timestamps.
// The [NextSequence] function atomically increments the per-table counter in its sequence table.
package repositories
