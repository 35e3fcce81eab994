package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/MyAiAd/whisper-service/internal/transcription"
)

// keyPrefix namespaces cache entries so a clear never touches unrelated
// keys in a shared Redis database.
const keyPrefix = "transcription:"

// Store is the transcription result cache. Lookup and Store are
// best-effort: a backend failure is reported as a miss or a failed store,
// never an error, because caching must not affect request outcomes.
type Store interface {
	Lookup(ctx context.Context, rawAudio []byte) (*transcription.Result, bool)
	Store(ctx context.Context, rawAudio []byte, result *transcription.Result) bool
	Clear(ctx context.Context) int
}

// Key derives the cache key for raw uploaded bytes. The key is the hex
// SHA-256 of the content, so two uploads of the same file always collide
// and any byte difference never does.
func Key(rawAudio []byte) string {
	sum := sha256.Sum256(rawAudio)
	return keyPrefix + hex.EncodeToString(sum[:])
}
