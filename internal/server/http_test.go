package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MyAiAd/whisper-service/internal/audio"
	"github.com/MyAiAd/whisper-service/internal/cache"
	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/hallucination"
	"github.com/MyAiAd/whisper-service/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cache.Enabled = false
	cfg.Audio.DenoiseEnabled = false
	return cfg
}

// newTestServer wires a full service around the given backend and exposes
// the API through an httptest server.
func newTestServer(t *testing.T, cfg *config.Config, transcriber transcription.Transcriber) *httptest.Server {
	t.Helper()

	logger := testLogger()

	conditioner, err := audio.NewConditioner(cfg.Audio, logger, nil)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	classifier := hallucination.NewClassifier(cfg.Hallucination)
	store := cache.NewNoopStore()
	service := transcription.NewService(conditioner, transcriber, classifier, store, nil, logger,
		transcription.DefaultOptions(cfg.Model.Language, cfg.Model.BeamSize))

	h := NewHTTPServer(cfg, logger, service, store, nil, "mock")

	ts := httptest.NewServer(h.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	sampleRate := 16000
	samples := make([]float32, int(seconds*float64(sampleRate)))
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode test tone: %v", err)
	}
	return data
}

func uploadRequest(t *testing.T, url, filename string, content []byte, apiKey string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/transcribe", body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req
}

func mockBackend() *transcription.MockTranscriber {
	return &transcription.MockTranscriber{
		Output: &transcription.ModelOutput{
			Segments: []transcription.Segment{
				{Start: 0, End: 1.0, Text: " A perfectly normal test sentence."},
			},
			Language:            "en",
			LanguageProbability: 0.99,
		},
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), mockBackend())

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "tone.wav", toneWAV(t, 1.0), ""))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	if id := resp.Header.Get("X-Request-ID"); id == "" {
		t.Errorf("Expected X-Request-ID header")
	}

	var result transcription.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Transcript != "A perfectly normal test sentence." {
		t.Errorf("Expected transcript, got %q", result.Transcript)
	}
	if result.Language != "en" {
		t.Errorf("Expected language en, got %q", result.Language)
	}
	if result.AudioDuration < 0.9 || result.AudioDuration > 1.1 {
		t.Errorf("Expected duration near 1s, got %f", result.AudioDuration)
	}
	if result.CacheHit {
		t.Errorf("Expected fresh result with the cache disabled")
	}
}

func TestTranscribeRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxFileSize = 64 * 1024
	ts := newTestServer(t, cfg, mockBackend())

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/transcribe")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", resp.StatusCode)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "notes.txt", []byte("text"), ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("missing form field", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.WriteField("something", "else")
		writer.Close()

		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/transcribe", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "empty.wav", nil, ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("oversized upload", func(t *testing.T) {
		big := make([]byte, 200*1024)
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "big.wav", big, ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413, got %d", resp.StatusCode)
		}
	})

	t.Run("corrupt audio", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "junk.wav", []byte("definitely not audio data here"), ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("too short audio", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "blip.wav", toneWAV(t, 0.05), ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}

		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}
		if errResp["error"] == "" {
			t.Errorf("Expected an error message in the response")
		}
	})
}

func TestTranscribeBackendFailure(t *testing.T) {
	backend := &transcription.MockTranscriber{
		Err: &transcription.ModelError{Message: "backend down"},
	}
	ts := newTestServer(t, testConfig(), backend)

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "tone.wav", toneWAV(t, 1.0), ""))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKey = "secret"
	ts := newTestServer(t, cfg, mockBackend())

	t.Run("missing key", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "tone.wav", toneWAV(t, 1.0), ""))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "tone.wav", toneWAV(t, 1.0), "wrong"))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("correct key", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "tone.wav", toneWAV(t, 1.0), "secret"))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("cache clear requires key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/cache", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("health stays open", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	})
}

func TestCacheEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), mockBackend())

	t.Run("clear", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/cache", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}

		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if body["status"] != "cleared" {
			t.Errorf("Expected status cleared, got %v", body["status"])
		}
		if body["deleted"] != float64(0) {
			t.Errorf("Expected 0 entries removed from the inert store, got %v", body["deleted"])
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/cache")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestMonitoringEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(), mockBackend())

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("Expected healthy status, got %v", body["status"])
		}
	})

	t.Run("config omits secrets", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/config")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		if bytes.Contains(raw, []byte("api_key")) {
			t.Errorf("Expected config response to omit api_key")
		}
	})

	t.Run("root serves documentation", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/nope")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
	})
}
