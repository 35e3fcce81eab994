package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Limits        LimitsConfig        `yaml:"limits"`
	Audio         AudioConfig         `yaml:"audio"`
	Hallucination HallucinationConfig `yaml:"hallucination"`
	Cache         CacheConfig         `yaml:"cache"`
	Model         ModelConfig         `yaml:"model"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address      string `yaml:"address"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	APIKey       string `yaml:"api_key"`       // empty disables authentication
}

// LimitsConfig contains upload validation limits
type LimitsConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"` // bytes
	AllowedFormats []string `yaml:"allowed_formats"`
}

// AudioConfig contains audio conditioning parameters
type AudioConfig struct {
	TargetSampleRate   int     `yaml:"target_sample_rate"`  // Hz, the model's required rate
	MinDuration        float64 `yaml:"min_duration"`        // seconds
	MaxDuration        float64 `yaml:"max_duration"`        // seconds
	QuietRMSThreshold  float64 `yaml:"quiet_rms_threshold"` // below this the result is flagged quiet
	HighpassCutoff     float64 `yaml:"highpass_cutoff"`     // Hz
	TargetRMS          float64 `yaml:"target_rms"`
	PeakCeiling        float64 `yaml:"peak_ceiling"`
	VADFrameMs         int     `yaml:"vad_frame_ms"`
	VADEnergyThreshold float64 `yaml:"vad_energy_threshold"`
	DenoiseEnabled     bool    `yaml:"denoise_enabled"`
}

// HallucinationConfig contains the classifier decision thresholds.
// These are empirically chosen constants; they are exposed as tunables
// rather than hard-coded in the classifier.
type HallucinationConfig struct {
	NoSpeechThreshold         float64 `yaml:"no_speech_threshold"`
	LogProbThreshold          float64 `yaml:"logprob_threshold"`
	ShortAudioDuration        float64 `yaml:"short_audio_duration"`   // seconds
	MinPlausibleDuration      float64 `yaml:"min_plausible_duration"` // seconds
	MaxWordsShortClip         int     `yaml:"max_words_short_clip"`
	CompressionRatioThreshold float64 `yaml:"compression_ratio_threshold"`
	BigramRepeatThreshold     int     `yaml:"bigram_repeat_threshold"`
}

// CacheConfig contains transcription result cache configuration
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisURL  string `yaml:"redis_url"`
	TTL       int    `yaml:"ttl"`        // seconds
	OpTimeout int    `yaml:"op_timeout"` // seconds, per cache operation
}

// ModelConfig contains speech recognition backend configuration
type ModelConfig struct {
	Endpoint      string  `yaml:"endpoint"` // empty selects the mock backend
	APIKey        string  `yaml:"api_key"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	Language      string  `yaml:"language"` // empty means auto-detect
	BeamSize      int     `yaml:"beam_size"`
	Temperature   float64 `yaml:"temperature"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns a configuration populated with service defaults:
// 16kHz model input, 0.1-30s clips, 10MiB uploads, 1 hour cache TTL.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Limits: LimitsConfig{
			MaxFileSize:    10 * 1024 * 1024,
			AllowedFormats: []string{"wav", "mp3", "ogg", "flac"},
		},
		Audio: AudioConfig{
			TargetSampleRate:   16000,
			MinDuration:        0.1,
			MaxDuration:        30,
			QuietRMSThreshold:  0.001,
			HighpassCutoff:     80,
			TargetRMS:          0.1,
			PeakCeiling:        0.95,
			VADFrameMs:         30,
			VADEnergyThreshold: 0.01,
			DenoiseEnabled:     true,
		},
		Hallucination: HallucinationConfig{
			NoSpeechThreshold:         0.6,
			LogProbThreshold:          -1.0,
			ShortAudioDuration:        3.0,
			MinPlausibleDuration:      1.5,
			MaxWordsShortClip:         8,
			CompressionRatioThreshold: 3.0,
			BigramRepeatThreshold:     3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			RedisURL:  "redis://localhost:6379/0",
			TTL:       3600,
			OpTimeout: 2,
		},
		Model: ModelConfig{
			Timeout:       60,
			MaxRetries:    3,
			MaxConcurrent: 4,
			BeamSize:      5,
			Temperature:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Hallucination.Validate(); err != nil {
		return fmt.Errorf("hallucination config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates upload limits configuration
func (l *LimitsConfig) Validate() error {
	if l.MaxFileSize < 1024 {
		return fmt.Errorf("max_file_size must be at least 1024 bytes, got %d", l.MaxFileSize)
	}

	if len(l.AllowedFormats) == 0 {
		return fmt.Errorf("allowed_formats cannot be empty")
	}

	known := map[string]bool{"wav": true, "mp3": true, "ogg": true, "flac": true}
	for _, format := range l.AllowedFormats {
		if !known[strings.ToLower(format)] {
			return fmt.Errorf("unsupported format %q in allowed_formats (supported: wav, mp3, ogg, flac)", format)
		}
	}

	return nil
}

// FormatAllowed reports whether the given file extension is in the allow-list
func (l *LimitsConfig) FormatAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, format := range l.AllowedFormats {
		if strings.ToLower(format) == ext {
			return true
		}
	}
	return false
}

// Validate validates audio conditioning configuration
func (a *AudioConfig) Validate() error {
	if a.TargetSampleRate != 8000 && a.TargetSampleRate != 16000 {
		return fmt.Errorf("target_sample_rate must be 8000 or 16000 Hz, got %d", a.TargetSampleRate)
	}

	if a.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", a.MinDuration)
	}

	if a.MaxDuration <= a.MinDuration {
		return fmt.Errorf("max_duration (%f) must be greater than min_duration (%f)",
			a.MaxDuration, a.MinDuration)
	}

	if a.QuietRMSThreshold < 0 {
		return fmt.Errorf("quiet_rms_threshold cannot be negative, got %f", a.QuietRMSThreshold)
	}

	if a.HighpassCutoff <= 0 || a.HighpassCutoff >= float64(a.TargetSampleRate)/2 {
		return fmt.Errorf("highpass_cutoff must be between 0 and the Nyquist frequency, got %f", a.HighpassCutoff)
	}

	if a.TargetRMS <= 0 || a.TargetRMS > 1 {
		return fmt.Errorf("target_rms must be between 0 and 1, got %f", a.TargetRMS)
	}

	if a.PeakCeiling <= 0 || a.PeakCeiling > 1 {
		return fmt.Errorf("peak_ceiling must be between 0 and 1, got %f", a.PeakCeiling)
	}

	if a.VADFrameMs < 10 || a.VADFrameMs > 100 {
		return fmt.Errorf("vad_frame_ms must be between 10 and 100, got %d", a.VADFrameMs)
	}

	if a.VADEnergyThreshold < 0 || a.VADEnergyThreshold > 1 {
		return fmt.Errorf("vad_energy_threshold must be between 0 and 1, got %f", a.VADEnergyThreshold)
	}

	return nil
}

// Validate validates hallucination classifier thresholds
func (h *HallucinationConfig) Validate() error {
	if h.NoSpeechThreshold < 0 || h.NoSpeechThreshold > 1 {
		return fmt.Errorf("no_speech_threshold must be between 0 and 1, got %f", h.NoSpeechThreshold)
	}

	if h.LogProbThreshold > 0 {
		return fmt.Errorf("logprob_threshold must not be positive, got %f", h.LogProbThreshold)
	}

	if h.ShortAudioDuration <= 0 {
		return fmt.Errorf("short_audio_duration must be positive, got %f", h.ShortAudioDuration)
	}

	if h.MinPlausibleDuration <= 0 {
		return fmt.Errorf("min_plausible_duration must be positive, got %f", h.MinPlausibleDuration)
	}

	if h.MaxWordsShortClip < 1 {
		return fmt.Errorf("max_words_short_clip must be at least 1, got %d", h.MaxWordsShortClip)
	}

	if h.CompressionRatioThreshold <= 1 {
		return fmt.Errorf("compression_ratio_threshold must be greater than 1, got %f", h.CompressionRatioThreshold)
	}

	if h.BigramRepeatThreshold < 2 {
		return fmt.Errorf("bigram_repeat_threshold must be at least 2, got %d", h.BigramRepeatThreshold)
	}

	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RedisURL == "" {
		return fmt.Errorf("redis_url cannot be empty when cache is enabled")
	}

	if c.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", c.TTL)
	}

	if c.OpTimeout < 1 {
		return fmt.Errorf("op_timeout must be at least 1 second, got %d", c.OpTimeout)
	}

	return nil
}

// Validate validates model backend configuration
func (m *ModelConfig) Validate() error {
	if m.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", m.Timeout)
	}

	if m.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", m.MaxRetries)
	}

	if m.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", m.MaxConcurrent)
	}

	if m.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", m.BeamSize)
	}

	if m.Temperature < 0 || m.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", m.Temperature)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the server write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTTL returns the cache entry TTL as a time.Duration
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetOpTimeout returns the per-operation cache timeout as a time.Duration
func (c *CacheConfig) GetOpTimeout() time.Duration {
	return time.Duration(c.OpTimeout) * time.Second
}

// GetTimeout returns the model request timeout as a time.Duration
func (m *ModelConfig) GetTimeout() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// MaskedRedisURL returns the Redis URL with credentials hidden, safe for logging
func (c *CacheConfig) MaskedRedisURL() string {
	scheme, rest, found := strings.Cut(c.RedisURL, "://")
	if !found {
		return c.RedisURL
	}
	if _, host, hasCreds := strings.Cut(rest, "@"); hasCreds {
		return scheme + "://***:***@" + host
	}
	return c.RedisURL
}

// Summary returns a loggable snapshot of the configuration with secrets omitted
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"address":      c.Server.Address,
			"port":         c.Server.Port,
			"auth_enabled": c.Server.APIKey != "",
		},
		"limits": map[string]any{
			"max_file_size_mb": float64(c.Limits.MaxFileSize) / (1024 * 1024),
			"allowed_formats":  c.Limits.AllowedFormats,
		},
		"audio": map[string]any{
			"target_sample_rate": c.Audio.TargetSampleRate,
			"min_duration":       c.Audio.MinDuration,
			"max_duration":       c.Audio.MaxDuration,
			"denoise_enabled":    c.Audio.DenoiseEnabled,
		},
		"cache": map[string]any{
			"enabled":     c.Cache.Enabled,
			"redis_url":   c.Cache.MaskedRedisURL(),
			"ttl_seconds": c.Cache.TTL,
		},
		"model": map[string]any{
			"endpoint":  c.Model.Endpoint,
			"language":  c.Model.Language,
			"beam_size": c.Model.BeamSize,
		},
	}
}
