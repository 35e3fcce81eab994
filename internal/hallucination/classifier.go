package hallucination

import (
	"fmt"
	"strings"

	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/transcription"
)

// knownPhrases are transcripts the model is known to emit verbatim for
// silence or noise, matched exactly after normalization. Mostly video
// outros the model memorized from captioned training data.
var knownPhrases = []string{
	"thank you",
	"thanks for watching",
	"thank you for watching",
	"thank you so much for watching",
	"please subscribe",
	"subscribe to my channel",
	"see you in the next video",
	"see you next time",
	"see you in the next one",
	"bye bye",
	"the end",
	"you",
}

// knownFragments are spurious substrings: crowd-sourced captioning credits
// and subscribe prompts that leak into output for non-speech input.
var knownFragments = []string{
	"thanks for watching",
	"thank you for watching",
	"subscribe to",
	"like and subscribe",
	"see you in the next video",
	"subtitles by",
	"captions by",
	"transcribed by",
	"amara.org",
}

// Classifier decides whether a transcript is a hallucination. It is a pure
// function of its inputs: no I/O, no shared state, deterministic.
type Classifier struct {
	cfg config.HallucinationConfig
}

// NewClassifier creates a classifier with the configured thresholds
func NewClassifier(cfg config.HallucinationConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Decide evaluates the detection rules in order and returns the first
// match. A blank transcript is not a hallucination, just no speech.
func (c *Classifier) Decide(transcript string, segments []transcription.Segment, audioDuration float64) (bool, string) {
	normalized := Normalize(transcript)
	if normalized == "" {
		return false, ""
	}

	for _, phrase := range knownPhrases {
		if normalized == phrase {
			return true, "exact_match:" + phrase
		}
	}

	for _, fragment := range knownFragments {
		if strings.Contains(normalized, fragment) {
			return true, "substring_match:" + fragment
		}
	}

	if mean, ok := meanNoSpeechProb(segments); ok && mean > c.cfg.NoSpeechThreshold {
		return true, fmt.Sprintf("high_no_speech_prob:%.3f", mean)
	}

	if mean, ok := meanLogProb(segments); ok && mean < c.cfg.LogProbThreshold && audioDuration < c.cfg.ShortAudioDuration {
		return true, fmt.Sprintf("low_confidence_short_audio:avg_logprob=%.3f,duration=%.2fs", mean, audioDuration)
	}

	words := strings.Fields(normalized)
	if audioDuration < c.cfg.MinPlausibleDuration && len(words) > c.cfg.MaxWordsShortClip {
		return true, fmt.Sprintf("duration_mismatch:%d words in %.2fs", len(words), audioDuration)
	}

	if len(words) >= 4 {
		if bigram, count := mostRepeatedBigram(words); count >= c.cfg.BigramRepeatThreshold {
			return true, "repeated_phrase:" + bigram
		}
	}

	if len(words) > 3 {
		unique := uniqueWordCount(words)
		if ratio := float64(len(words)) / float64(unique); ratio > c.cfg.CompressionRatioThreshold {
			return true, fmt.Sprintf("high_compression_ratio:%.2f", ratio)
		}
	}

	return false, ""
}

// Normalize lowercases, strips punctuation except apostrophes, and
// collapses whitespace. Normalizing already-normalized text is a no-op.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		case r > 127 && !isPunct(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isPunct(r rune) bool {
	switch r {
	case '。', '、', '，', '！', '？', '：', '；', '«', '»', '“', '”', '‘', '’', '—', '…':
		return true
	}
	return false
}

// meanNoSpeechProb averages the no-speech probability across segments that
// report one. ok is false when no segment carries the field.
func meanNoSpeechProb(segments []transcription.Segment) (float64, bool) {
	var sum float64
	count := 0
	for _, s := range segments {
		if s.NoSpeechProb != nil {
			sum += *s.NoSpeechProb
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// meanLogProb averages the log probability across segments that report one
func meanLogProb(segments []transcription.Segment) (float64, bool) {
	var sum float64
	count := 0
	for _, s := range segments {
		if s.AvgLogProb != nil {
			sum += *s.AvgLogProb
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// mostRepeatedBigram returns the adjacent two-word sequence that recurs
// most often, with its occurrence count
func mostRepeatedBigram(words []string) (string, int) {
	counts := make(map[string]int)
	best := ""
	bestCount := 0
	for i := 0; i+1 < len(words); i++ {
		bigram := words[i] + " " + words[i+1]
		counts[bigram]++
		if counts[bigram] > bestCount {
			best = bigram
			bestCount = counts[bigram]
		}
	}
	return best, bestCount
}

func uniqueWordCount(words []string) int {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return len(seen)
}
