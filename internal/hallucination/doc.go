// Package hallucination detects transcripts that are known speech-model
// failure modes rather than real speech: phantom video-outro phrases,
// low-confidence output on short clips, implausible speech rates, and
// degenerate repetition. The classifier is a pure function over the
// transcript and per-segment confidence signals; the model itself offers
// no hallucination flag.
package hallucination
