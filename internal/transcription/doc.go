// Package transcription turns uploaded audio into text. It defines the
// recognition backend abstraction with HTTP and mock implementations, the
// result schema shared with the cache and the HTTP surface, and the Service
// orchestrator that runs the full request pipeline: cache lookup, signal
// conditioning, recognition, hallucination filtering and cache store.
package transcription
