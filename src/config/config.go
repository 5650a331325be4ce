package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all service configuration, sourced from the environment.
// Unrecognized environment variables are ignored.
type Config struct {
	// HTTP listen port for the telephony and operator WebSocket endpoints.
	Port int

	// Gemini Live API.
	GeminiKey   string
	GeminiModel string
	GeminiVoice string

	// Endpoint that receives call-log init and chunk POSTs.
	LogEndpoint string
	// Endpoint serving the additional system-instruction corpus.
	SysInstEndpoint string
	// Minimum number of unshipped transcript entries that triggers a chunk ship.
	LogChunkSize int

	// Aldar Exchange backend base URL for tool calls.
	AldarBaseAPIURL string

	// Twilio credentials. Token minting and TwiML generation live outside this
	// service; the credentials are accepted here so a single env file covers
	// the whole deployment.
	TwilioAccountSID string
	TwilioAPIKey     string
	TwilioAPISecret  string
	TwilioTwimlApp   string

	// Directory that receives call_{uuid}.wav files.
	RecordingsDir string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("PORT", 5049)
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash-native-audio-latest")
	v.SetDefault("GEMINI_VOICE", "Puck")
	v.SetDefault("LOG_CHUNK_SIZE", 5)
	v.SetDefault("RECORDINGS_DIR", "recordings")
	v.SetDefault("ALDAR_BASE_API_URL", "https://aldarexchangeuat.net/ONLINEApp")

	cfg := &Config{
		Port:             v.GetInt("PORT"),
		GeminiKey:        v.GetString("GEMINI_KEY"),
		GeminiModel:      v.GetString("GEMINI_MODEL"),
		GeminiVoice:      v.GetString("GEMINI_VOICE"),
		LogEndpoint:      v.GetString("LOG_ENDPOINT"),
		SysInstEndpoint:  v.GetString("SYS_INST_ENDPOINT"),
		LogChunkSize:     v.GetInt("LOG_CHUNK_SIZE"),
		AldarBaseAPIURL:  v.GetString("ALDAR_BASE_API_URL"),
		TwilioAccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAPIKey:     v.GetString("TWILIO_API_KEY"),
		TwilioAPISecret:  v.GetString("TWILIO_API_SECRET"),
		TwilioTwimlApp:   v.GetString("TWILIO_TWIML_APP_SID"),
		RecordingsDir:    v.GetString("RECORDINGS_DIR"),
	}

	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_KEY is required")
	}
	if cfg.LogChunkSize < 1 {
		cfg.LogChunkSize = 5
	}

	return cfg, nil
}
