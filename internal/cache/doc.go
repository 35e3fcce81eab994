// Package cache provides the content-addressable transcription result
// cache. Entries are keyed by the SHA-256 of the raw uploaded bytes, so
// identical uploads hit regardless of filename. The Redis-backed store
// degrades to a miss on any backend failure; when Redis is unreachable at
// startup, or caching is disabled, the service runs with an inert store
// and every request transcribes from scratch.
package cache
