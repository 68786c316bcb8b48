// Package ui renders CLI output with lipgloss styles.
//
// [Printer] turns the engine's progress updates into styled status lines; resolved mentions are only shown
// in verbose mode, while misses, failures and timeouts are always shown. [Palette.TrackTable] and
// [Palette.Summary] render the final playlist.
package ui
