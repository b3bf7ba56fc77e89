// Package config loads searchcache settings.
//
// Settings are layered, later layers winning:
//
//  1. Built-in defaults (Default).
//  2. An optional YAML file, named explicitly or by SEARCHCACHE_CONFIG.
//  3. Environment variables prefixed SEARCHCACHE_, with a double underscore
//     separating nesting levels. SEARCHCACHE_EXTERNAL__MAX_ENTRIES=5000 sets
//     external.max_entries; SEARCHCACHE_BACKENDS__PUBMED__TIMEOUT=8s sets
//     backends.pubmed.timeout.
//
// Durations accept Go duration strings such as "90s" or "30m".
package config
