package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MyAiAd/whisper-service/internal/audio"
	"github.com/MyAiAd/whisper-service/internal/cache"
	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/metrics"
	"github.com/MyAiAd/whisper-service/internal/transcription"
)

// multipartOverhead is extra room on top of the file size limit for the
// multipart framing and the options field.
const multipartOverhead = 64 * 1024

// HTTPServer provides the transcription HTTP API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	service *transcription.Service
	store   cache.Store
	metrics *metrics.Metrics
	backend string

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server. backend names the active
// recognition implementation for the health endpoint.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	service *transcription.Service, store cache.Store, m *metrics.Metrics, backend string) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		service:   service,
		store:     store,
		metrics:   m,
		backend:   backend,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Transcription endpoint
	mux.HandleFunc("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))

	// Cache management endpoint
	mux.HandleFunc("/cache", h.withMetrics("/cache", h.handleCache))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection and request logging
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		requestID := uuid.NewString()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		ww.Header().Set("X-Request-ID", requestID)

		handler(ww, r.WithContext(withRequestID(r.Context(), requestID)))

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration_ms", time.Since(startTime).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stamped on the context, or empty
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// authorized checks the X-API-Key header against the configured key.
// An empty configured key disables authentication.
func (h *HTTPServer) authorized(r *http.Request) bool {
	if h.config.Server.APIKey == "" {
		return true
	}
	return r.Header.Get("X-API-Key") == h.config.Server.APIKey
}

// writeError sends a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON sends a JSON success response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleTranscribe implements the POST /transcribe endpoint
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	maxBytes := h.config.Limits.MaxFileSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", h.config.Limits.MaxFileSize))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'audio' form field")
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !h.config.Limits.FormatAllowed(ext) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file format %q (allowed: %v)", ext, h.config.Limits.AllowedFormats))
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	if int64(len(raw)) > h.config.Limits.MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", h.config.Limits.MaxFileSize))
		return
	}

	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	h.metrics.RecordTranscriptionRequest()

	result, err := h.service.Process(r.Context(), raw, header.Filename)
	if err != nil {
		var validationErr *audio.ValidationError
		var modelErr *transcription.ModelError

		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Error())
		case errors.As(err, &modelErr):
			h.logger.Error("transcription failed",
				"request_id", RequestID(r.Context()),
				"filename", header.Filename,
				"error", err)
			writeError(w, http.StatusInternalServerError, "transcription backend failed")
		default:
			h.logger.Error("transcription failed",
				"request_id", RequestID(r.Context()),
				"filename", header.Filename,
				"error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.metrics.RecordAudioDuration(result.AudioDuration)
	writeJSON(w, result)
}

// handleCache implements the DELETE /cache endpoint
func (h *HTTPServer) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	removed := h.store.Clear(r.Context())
	h.metrics.RecordCacheCleared(removed)

	writeJSON(w, map[string]any{
		"status":  "cleared",
		"deleted": removed,
		"message": fmt.Sprintf("removed %d cached transcriptions", removed),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uptime := time.Since(h.startTime)

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]any{
			"name":    "whisper-service",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"cache": map[string]any{
				"enabled": h.config.Cache.Enabled,
			},
			"model": map[string]any{
				"backend": h.backend,
			},
		},
	}

	writeJSON(w, health)
}

// handleConfig implements the /config endpoint, returning the sanitized
// configuration with secrets omitted
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, h.config.Summary())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Speech Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"POST /transcribe": "Transcribe an uploaded audio file (multipart field 'audio')",
			"DELETE /cache":    "Remove all cached transcription results",
			"GET /health":      "Service health check",
			"GET /config":      "Get service configuration",
			"GET /metrics":     "Prometheus metrics",
			"GET /":            "API documentation",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, apiDoc)
}
