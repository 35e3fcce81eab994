package cache

import (
	"context"

	"github.com/MyAiAd/whisper-service/internal/transcription"
)

// NoopStore is the inert cache used when caching is disabled or Redis is
// unreachable at startup. Every lookup misses and every store reports
// failure without raising, so callers never branch on cache presence.
type NoopStore struct{}

// NewNoopStore creates an inert cache
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (n *NoopStore) Lookup(_ context.Context, _ []byte) (*transcription.Result, bool) {
	return nil, false
}

func (n *NoopStore) Store(_ context.Context, _ []byte, _ *transcription.Result) bool {
	return false
}

func (n *NoopStore) Clear(_ context.Context) int {
	return 0
}
