package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MyAiAd/whisper-service/internal/audio"
)

func testSignal() *audio.Signal {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.1
	}
	return &audio.Signal{Samples: samples, SampleRate: 16000}
}

func wireBody() []byte {
	logProb := -0.3
	noSpeech := 0.05
	body, _ := json.Marshal(wireResponse{
		Segments: []struct {
			Start        float64  `json:"start"`
			End          float64  `json:"end"`
			Text         string   `json:"text"`
			AvgLogProb   *float64 `json:"avg_logprob"`
			NoSpeechProb *float64 `json:"no_speech_prob"`
		}{
			{Start: 0, End: 1, Text: " Hello.", AvgLogProb: &logProb, NoSpeechProb: &noSpeech},
		},
		Language:            "en",
		LanguageProbability: 0.99,
	})
	return body
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Errorf("Expected error for empty endpoint")
	}

	client, err := NewClient(ClientConfig{Endpoint: "http://localhost:9000/transcribe"})
	if err != nil {
		t.Fatalf("Expected client to be created, got: %v", err)
	}

	// Zero values fall back to defaults
	if client.config.Timeout != 60*time.Second {
		t.Errorf("Expected default timeout, got %v", client.config.Timeout)
	}
	if client.config.MaxConcurrent != 4 {
		t.Errorf("Expected default concurrency, got %d", client.config.MaxConcurrent)
	}
}

func TestClientTranscribe(t *testing.T) {
	var gotOptions atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}

		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("Expected audio form file: %v", err)
		} else {
			file.Close()
		}

		gotOptions.Store(r.FormValue("options"))

		w.Header().Set("Content-Type", "application/json")
		w.Write(wireBody())
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	opts := DefaultOptions("en", 5)
	output, err := client.Transcribe(context.Background(), testSignal(), opts)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if len(output.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(output.Segments))
	}
	if output.Segments[0].Text != " Hello." {
		t.Errorf("Expected segment text, got %q", output.Segments[0].Text)
	}
	if output.Segments[0].AvgLogProb == nil || *output.Segments[0].AvgLogProb != -0.3 {
		t.Errorf("Expected avg_logprob -0.3")
	}
	if output.Language != "en" {
		t.Errorf("Expected language en, got %q", output.Language)
	}

	var sentOpts Options
	if err := json.Unmarshal([]byte(gotOptions.Load().(string)), &sentOpts); err != nil {
		t.Fatalf("Failed to decode sent options: %v", err)
	}
	if sentOpts.BeamSize != 5 || sentOpts.Language != "en" {
		t.Errorf("Expected options forwarded to the backend, got %+v", sentOpts)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 successful request, got %+v", stats)
	}
}

func TestClientRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporary overload", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(wireBody())
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	output, err := client.Transcribe(context.Background(), testSignal(), DefaultOptions("", 5))
	if err != nil {
		t.Fatalf("Expected retry to succeed, got: %v", err)
	}
	if output.Language != "en" {
		t.Errorf("Expected language en, got %q", output.Language)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retry recorded, got %d", stats.TotalRetries)
	}
}

func TestClientDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Transcribe(context.Background(), testSignal(), DefaultOptions("", 5))
	if err == nil {
		t.Fatalf("Expected error for 400 response")
	}

	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("Expected *ModelError, got %T", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single attempt for a non-retryable failure, got %d", got)
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Endpoint: server.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Transcribe(ctx, testSignal(), DefaultOptions("", 5))
	if err == nil {
		t.Fatalf("Expected error for cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected prompt cancellation, took %v", elapsed)
	}
}
