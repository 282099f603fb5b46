// Package config loads pixelstorm settings.
//
// Settings come from three places, later ones overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. PIXELSTORM_* environment variables
//
// Environment variables map onto setting paths by section:
// PIXELSTORM_HISTORY_MAX_ENTRIES sets history.max_entries and
// PIXELSTORM_AUTOSAVE_IN_MEMORY sets autosave.in_memory.
//
// # Configuration Files
//
//	# pixelstorm.toml
//	[history]
//	memory_limit = 67108864
//	max_entries = 500
//	eviction = "abandoned-first"
//
//	[autosave]
//	enabled = true
//	dir = "~/.cache/pixelstorm"
//	interval = "30s"
//
//	[log]
//	level = "debug"
//	development = true
//
// Unknown settings are rejected. Every value is validated after merging
// and all problems are reported together.
//
// # Live Reload
//
// Watcher re-reads the file when it changes on disk and hands the new
// Config to registered handlers. A file that fails to load or validate is
// logged and ignored; the previous Config stays current.
package config
