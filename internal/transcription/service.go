package transcription

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MyAiAd/whisper-service/internal/audio"
	"github.com/MyAiAd/whisper-service/internal/metrics"
)

// ResultStore is the cache the orchestrator consults before and after
// recognition. Both methods are best-effort: a store that cannot serve
// reports a miss or a failed store, never an error.
type ResultStore interface {
	Lookup(ctx context.Context, rawAudio []byte) (*Result, bool)
	Store(ctx context.Context, rawAudio []byte, result *Result) bool
}

// Conditioner prepares raw uploaded bytes for recognition
type Conditioner interface {
	Process(raw []byte, filenameHint string) (*audio.Signal, error)
}

// Classifier decides whether recognized text is a model hallucination
type Classifier interface {
	Decide(transcript string, segments []Segment, audioDuration float64) (bool, string)
}

// Service orchestrates one transcription request end to end. All
// collaborators are constructed once at startup and shared; the service
// itself holds no per-request state and is safe for concurrent use.
type Service struct {
	conditioner Conditioner
	transcriber Transcriber
	classifier  Classifier
	store       ResultStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	opts        Options
}

// NewService creates the request orchestrator
func NewService(conditioner Conditioner, transcriber Transcriber, classifier Classifier, store ResultStore, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conditioner: conditioner,
		transcriber: transcriber,
		classifier:  classifier,
		store:       store,
		metrics:     m,
		logger:      logger,
		opts:        opts,
	}
}

// Process runs the pipeline for one upload. A cache hit short-circuits
// before any signal processing. Validation failures and backend failures
// propagate to the caller; cache failures never do.
func (s *Service) Process(ctx context.Context, raw []byte, filenameHint string) (*Result, error) {
	start := time.Now()

	if cached, ok := s.store.Lookup(ctx, raw); ok {
		s.metrics.RecordCacheHit()
		s.logger.Info("cache hit",
			"filename", filenameHint,
			"cached_at", cached.CachedAt)
		return cached, nil
	}
	s.metrics.RecordCacheMiss()

	conditionStart := time.Now()
	signal, err := s.conditioner.Process(raw, filenameHint)
	if err != nil {
		return nil, err
	}
	conditionTime := time.Since(conditionStart).Seconds()
	s.metrics.RecordConditioningDuration(conditionTime)

	if signal.QuietWarning {
		s.logger.Warn("very quiet audio, transcription quality may suffer",
			"filename", filenameHint,
			"rms", signal.RMS())
	}

	modelStart := time.Now()
	output, err := s.transcriber.Transcribe(ctx, signal, s.opts)
	if err != nil {
		s.metrics.RecordTranscriptionFailure()
		return nil, err
	}
	modelTime := time.Since(modelStart).Seconds()
	s.metrics.RecordTranscriptionDuration(modelTime)

	duration := signal.Duration()
	result := &Result{
		Transcript:          joinSegments(output.Segments),
		Segments:            output.Segments,
		Language:            output.Language,
		LanguageProbability: Round3(output.LanguageProbability),
		AudioDuration:       Round3(duration),
		ProcessingTime: map[string]float64{
			"conditioning":  Round3(conditionTime),
			"transcription": Round3(modelTime),
		},
	}
	if duration > 0 {
		result.RealTimeFactor = Round3(modelTime / duration)
	}

	if filtered, reason := s.classifier.Decide(result.Transcript, result.Segments, duration); filtered {
		s.metrics.RecordHallucinationFiltered(ruleClass(reason))
		s.logger.Info("hallucination filtered",
			"filename", filenameHint,
			"reason", reason,
			"transcript", result.Transcript)

		result.HallucinationFiltered = true
		result.HallucinationReason = reason
		result.Transcript = ""
		for i := range result.Segments {
			result.Segments[i].FilteredAsHallucination = true
		}
	}

	stored := s.store.Store(ctx, raw, result)
	s.metrics.RecordCacheStore(stored)

	result.TotalProcessingTime = Round3(time.Since(start).Seconds())

	s.logger.Info("transcription complete",
		"filename", filenameHint,
		"language", result.Language,
		"audio_duration", result.AudioDuration,
		"real_time_factor", result.RealTimeFactor,
		"filtered", result.HallucinationFiltered,
		"total_time", result.TotalProcessingTime)

	return result, nil
}

// ruleClass extracts the rule name from a classifier reason, which has the
// form "rule:detail"
func ruleClass(reason string) string {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		return reason[:i]
	}
	return reason
}

// joinSegments assembles the full transcript. Segment texts carry their own
// leading whitespace, so plain concatenation plus an outer trim is enough.
func joinSegments(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String())
}
