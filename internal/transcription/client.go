package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/MyAiAd/whisper-service/internal/audio"
)

// ClientConfig contains HTTP recognition backend configuration
type ClientConfig struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Client invokes a whisper-compatible recognition server over HTTP. The
// conditioned signal is uploaded as 16-bit PCM WAV together with the
// decoding options. Excess concurrency is serialized behind a semaphore so
// a burst of requests cannot overload the backend.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64

	mu sync.RWMutex
}

// ClientStats represents recognition client statistics
type ClientStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
	TotalRetries    uint64  `json:"total_retries"`
	ActiveRequests  int     `json:"active_requests"`
}

// wireResponse is the JSON shape returned by the recognition server
type wireResponse struct {
	Segments []struct {
		Start        float64  `json:"start"`
		End          float64  `json:"end"`
		Text         string   `json:"text"`
		AvgLogProb   *float64 `json:"avg_logprob"`
		NoSpeechProb *float64 `json:"no_speech_prob"`
	} `json:"segments"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

// NewClient creates a new recognition backend client
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe sends the conditioned signal for recognition. Transient
// failures are retried with exponential backoff and jitter; the final
// failure surfaces as a *ModelError.
func (c *Client) Transcribe(ctx context.Context, signal *audio.Signal, opts Options) (*ModelOutput, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, newModelError("recognition backend unavailable", ctx.Err())
	}

	c.incrementTotal()

	wavData, err := audio.EncodeWAV(signal.Samples, signal.SampleRate)
	if err != nil {
		c.incrementFailed()
		return nil, newModelError("failed to encode signal for upload", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementRetries()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			backoff += time.Duration(rand.Int63n(int64(time.Second)))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.incrementFailed()
				return nil, newModelError("recognition backend unavailable", ctx.Err())
			}
		}

		output, retryable, err := c.doRequest(ctx, wavData, opts)
		if err == nil {
			c.incrementSuccess()
			return output, nil
		}

		lastErr = err
		if !retryable {
			break
		}
	}

	c.incrementFailed()
	return nil, newModelError("recognition request failed", lastErr)
}

// doRequest performs one recognition attempt. The second return value
// reports whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, wavData []byte, opts Options) (*ModelOutput, bool, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "signal.wav")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, false, fmt.Errorf("failed to write audio data: %w", err)
	}

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode options: %w", err)
	}
	if err := writer.WriteField("options", string(optsJSON)); err != nil {
		return nil, false, fmt.Errorf("failed to write options field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to finalize request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("server returned status %d: %s", resp.StatusCode, truncate(respBody, 200))
	default:
		return nil, false, fmt.Errorf("server returned status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	output := &ModelOutput{
		Language:            wire.Language,
		LanguageProbability: wire.LanguageProbability,
		Segments:            make([]Segment, 0, len(wire.Segments)),
	}
	for _, s := range wire.Segments {
		output.Segments = append(output.Segments, Segment{
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			AvgLogProb:   s.AvgLogProb,
			NoSpeechProb: s.NoSpeechProb,
		})
	}

	return output, false, nil
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		ActiveRequests:  len(c.semaphore),
	}
}

func (c *Client) incrementTotal() {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()
}

func (c *Client) incrementSuccess() {
	c.mu.Lock()
	c.successRequests++
	c.mu.Unlock()
}

func (c *Client) incrementFailed() {
	c.mu.Lock()
	c.failedRequests++
	c.mu.Unlock()
}

func (c *Client) incrementRetries() {
	c.mu.Lock()
	c.totalRetries++
	c.mu.Unlock()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
