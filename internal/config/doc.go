// Package config provides configuration loading and validation for the
// whisper transcription service. It handles YAML-based configuration with
// struct validation and sensible defaults for every section.
package config
