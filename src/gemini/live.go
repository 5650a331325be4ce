package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aldarlabs/voicebridge/src/logger"
)

// liveURL is the Gemini Live bidirectional endpoint.
const liveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	dialTimeout    = 45 * time.Second
	setupTimeout   = 10 * time.Second
	maxMessageSize = 16 * 1024 * 1024
	inputAudioMime = "audio/pcm;rate=16000"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("gemini: session is closed")

// LiveConfig configures one Live session.
type LiveConfig struct {
	APIKey            string
	Model             string // e.g. "gemini-2.5-flash-native-audio-latest"
	Voice             string // prebuilt voice name, e.g. "Puck"
	SystemInstruction string
	Tools             []FunctionDeclaration
}

// LiveSession is a bidirectional streaming session with the Gemini Live
// API: realtime PCM16/16 kHz audio in; audio, transcriptions and tool calls
// out. Receive is single-consumer; Send* methods are safe for concurrent
// use with Receive.
type LiveSession struct {
	conn *websocket.Conn
	log  *logger.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// Connect dials the Live endpoint, sends the setup message and waits for
// setupComplete. The session is configured for audio responses with input
// and output transcription enabled and thinking disabled.
func Connect(ctx context.Context, cfg LiveConfig) (*LiveSession, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, liveURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gemini: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gemini: dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &LiveSession{
		conn: conn,
		log:  logger.WithPrefix("Gemini"),
	}

	if err := s.send(buildSetupMessage(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("gemini: failed to send setup message: %w", err)
	}

	// First server message must be setupComplete.
	conn.SetReadDeadline(time.Now().Add(setupTimeout))
	first, err := s.Receive()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("gemini: failed to receive setup response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if first.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("gemini: setup_complete not received")
	}

	s.log.Info("Live session established (model %s)", cfg.Model)
	return s, nil
}

// buildSetupMessage assembles the BidiGenerateContentSetup payload.
func buildSetupMessage(cfg LiveConfig) map[string]interface{} {
	modelPath := cfg.Model
	if len(modelPath) < 7 || modelPath[:7] != "models/" {
		modelPath = "models/" + modelPath
	}

	generationConfig := map[string]interface{}{
		"responseModalities": []string{"AUDIO"},
		"thinkingConfig":     map[string]interface{}{"thinkingBudget": 0},
	}
	if cfg.Voice != "" {
		generationConfig["speechConfig"] = map[string]interface{}{
			"voiceConfig": map[string]interface{}{
				"prebuiltVoiceConfig": map[string]interface{}{
					"voiceName": cfg.Voice,
				},
			},
		}
	}

	setup := map[string]interface{}{
		"model":                    modelPath,
		"generationConfig":         generationConfig,
		"inputAudioTranscription":  map[string]interface{}{},
		"outputAudioTranscription": map[string]interface{}{},
	}

	if cfg.SystemInstruction != "" {
		setup["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": cfg.SystemInstruction},
			},
		}
	}

	if len(cfg.Tools) > 0 {
		setup["tools"] = []map[string]interface{}{
			{"functionDeclarations": cfg.Tools},
		}
	}

	return map[string]interface{}{"setup": setup}
}

func (s *LiveSession) send(msg interface{}) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// SendAudio streams one chunk of PCM16/16 kHz audio as realtime input.
func (s *LiveSession) SendAudio(pcm []byte) error {
	msg := map[string]interface{}{
		"realtimeInput": map[string]interface{}{
			"mediaChunks": []map[string]interface{}{
				{
					"mimeType": inputAudioMime,
					"data":     base64.StdEncoding.EncodeToString(pcm),
				},
			},
		},
	}
	return s.send(msg)
}

// SendToolResponses replies to the model's tool calls in one batched
// toolResponse message.
func (s *LiveSession) SendToolResponses(responses []FunctionResponse) error {
	if len(responses) == 0 {
		return nil
	}
	msg := map[string]interface{}{
		"toolResponse": map[string]interface{}{
			"functionResponses": responses,
		},
	}
	return s.send(msg)
}

// Receive blocks for the next server message. It returns the connection
// error once the session ends.
func (s *LiveSession) Receive() (*ServerMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("gemini: failed to unmarshal server message: %w", err)
	}
	return &msg, nil
}

// Close shuts the session down. Safe to call more than once.
func (s *LiveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

// AudioData extracts the concatenated inline PCM audio carried by a server
// message, or nil if the message has none.
func AudioData(msg *ServerMessage) []byte {
	if msg.ServerContent == nil || msg.ServerContent.ModelTurn == nil {
		return nil
	}
	var out []byte
	for _, part := range msg.ServerContent.ModelTurn.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			continue
		}
		out = append(out, data...)
	}
	return out
}
