// Package config loads runtime configuration for the biru CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c / -config or $BIRU_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-s string   AT-Protocol server hostname (bsky.social)
//	-r string   handle backend base URL (https://bsky.makeup)
//	-d string   session database path (biru.db)
//	-k string   token key file path (biru.key)
//	-w int      debounce delay, milliseconds (500)
//	-t int      request timeout, seconds (10)
//	-l string   log level (warn)
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "500ms" or
// integer nanoseconds:
//
//	{
//	  "server": "bsky.social",
//	  "registry_url": "https://bsky.makeup",
//	  "db_path": "/home/alice/.local/share/biru/biru.db",
//	  "key_path": "/home/alice/.local/share/biru/biru.key",
//	  "debounce_delay": "500ms",
//	  "request_timeout": "10s",
//	  "session_ttl": "8064h",
//	  "log_level": "info"
//	}
//
// The loaded Config should be checked with (*Config).Validate.
package config
