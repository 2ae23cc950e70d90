// Package ui implements a terminal preview of the now-playing color using bubbletea's Elm architecture.
//
// The preview shows:
//  1. a swatch filled with the current color, labelled with its hex code
//  2. the playing track, or "No music playing"
//  3. a list of recent transitions fed by a [tasks.ChannelListener]
//  4. optionally, the integration counters
//
// The [Model] refreshes on a [tea.Tick], reading through the [Source] interface so polling stays in
// the integration. Transitions arrive through a channel drained one message at a time, the same
// way the poller delivers them.
//
// Keys: c copies the hex code to the clipboard, s toggles counters, ? toggles help, q quits.
package ui
