package transcription

import (
	"fmt"
	"math"
)

// Segment is one time-aligned span of model output. Confidence fields are
// pointers because not every backend reports them.
type Segment struct {
	Start                   float64  `json:"start"`
	End                     float64  `json:"end"`
	Text                    string   `json:"text"`
	AvgLogProb              *float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb            *float64 `json:"no_speech_prob,omitempty"`
	FilteredAsHallucination bool     `json:"filtered_as_hallucination,omitempty"`
}

// Result is the complete transcription outcome for one request. It is the
// on-the-wire and on-cache representation; all fields round-trip through
// JSON unchanged.
type Result struct {
	Transcript            string             `json:"transcript"`
	Segments              []Segment          `json:"segments"`
	Language              string             `json:"language"`
	LanguageProbability   float64            `json:"language_probability"`
	AudioDuration         float64            `json:"audio_duration"`
	ProcessingTime        map[string]float64 `json:"processing_time"`
	RealTimeFactor        float64            `json:"real_time_factor"`
	HallucinationFiltered bool               `json:"hallucination_filtered"`
	HallucinationReason   string             `json:"hallucination_reason,omitempty"`
	TotalProcessingTime   float64            `json:"total_processing_time"`

	// Cache metadata, stamped by the result cache.
	CachedAt   string `json:"cached_at,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
	CacheHitAt string `json:"cache_hit_at,omitempty"`
}

// ModelOutput is what the speech recognition capability returns
type ModelOutput struct {
	Segments            []Segment
	Language            string
	LanguageProbability float64
}

// ModelError indicates the recognition backend was unavailable or failed
// internally. It surfaces as a server error and is never silently swallowed.
type ModelError struct {
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func newModelError(message string, err error) *ModelError {
	return &ModelError{Message: message, Err: err}
}

// Round3 rounds to three decimal places, the precision used for all time
// and probability fields in serialized results
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
