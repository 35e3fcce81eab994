// Package server provides the HTTP API: transcription upload, cache
// management, health and configuration endpoints, and Prometheus metrics.
// Every handler is wrapped with request metrics and structured request
// logging; mutating endpoints require the configured API key.
package server
