// Package config provides environment-driven configuration for parley commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names for vendor credentials.
const (
	EnvAssemblyAIKey = "ASSEMBLYAI_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvMurfKey       = "MURF_API_KEY"
	EnvMurfVoiceID   = "MURF_VOICE_ID"
)

// Default server configuration.
const (
	DefaultPort          = "8000"
	DefaultRecordingsDir = "recordings"
	DefaultStaticDir     = "static"
)

// Get returns the value of an environment variable, or fallback if unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetInt returns an integer environment variable, or fallback if unset
// or unparsable.
func GetInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetDuration returns a duration environment variable (e.g. "30s", "24h"),
// or fallback if unset or unparsable.
func GetDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// MissingKeys returns the names of required vendor credentials that are unset.
// The service still starts without them; /health reports the gaps and the
// affected pipeline stages degrade per turn.
func MissingKeys() []string {
	var missing []string
	for _, key := range []string{EnvAssemblyAIKey, EnvGeminiKey, EnvMurfKey, EnvMurfVoiceID} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
