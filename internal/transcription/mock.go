package transcription

import (
	"context"

	"github.com/MyAiAd/whisper-service/internal/audio"
)

// MockTranscriber is a stand-in recognition backend for tests and for
// running the service without a model server. It returns the configured
// output, or an empty English result when none is set.
type MockTranscriber struct {
	Output *ModelOutput
	Err    error
}

// NewMockTranscriber creates a mock backend returning empty output
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (m *MockTranscriber) Transcribe(_ context.Context, _ *audio.Signal, _ Options) (*ModelOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Output != nil {
		return m.Output, nil
	}
	return &ModelOutput{Language: "en", LanguageProbability: 1.0}, nil
}
