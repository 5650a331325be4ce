package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_KEY", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5049, cfg.Port)
	assert.Equal(t, "gemini-2.5-flash-native-audio-latest", cfg.GeminiModel)
	assert.Equal(t, "Puck", cfg.GeminiVoice)
	assert.Equal(t, 5, cfg.LogChunkSize)
	assert.Equal(t, "recordings", cfg.RecordingsDir)
	assert.Equal(t, "https://aldarexchangeuat.net/ONLINEApp", cfg.AldarBaseAPIURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_KEY", "test-key")
	t.Setenv("PORT", "8080")
	t.Setenv("GEMINI_VOICE", "Kore")
	t.Setenv("LOG_CHUNK_SIZE", "10")
	t.Setenv("LOG_ENDPOINT", "https://logs.example.com/calls")
	t.Setenv("RECORDINGS_DIR", "/var/recordings")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Kore", cfg.GeminiVoice)
	assert.Equal(t, 10, cfg.LogChunkSize)
	assert.Equal(t, "https://logs.example.com/calls", cfg.LogEndpoint)
	assert.Equal(t, "/var/recordings", cfg.RecordingsDir)
}

func TestLoadChunkSizeFloor(t *testing.T) {
	t.Setenv("GEMINI_KEY", "test-key")
	t.Setenv("LOG_CHUNK_SIZE", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LogChunkSize)
}
