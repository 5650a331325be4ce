package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aldarlabs/voicebridge/src/config"
	"github.com/aldarlabs/voicebridge/src/gemini"
	"github.com/aldarlabs/voicebridge/src/logger"
	"github.com/aldarlabs/voicebridge/src/recording"
	"github.com/aldarlabs/voicebridge/src/telephony"
	"github.com/aldarlabs/voicebridge/src/tools"
	"github.com/aldarlabs/voicebridge/src/transcript"
)

// liveConnector establishes the model session for a call. Swapped out in
// tests.
type liveConnector func(ctx context.Context, cfg gemini.LiveConfig) (liveStream, error)

// Handler serves the telephony WebSocket endpoint. Each accepted connection
// becomes one Call with its own Session.
type Handler struct {
	cfg      *config.Config
	registry *Registry
	tools    *tools.Dispatcher
	connect  liveConnector
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler wires the telephony endpoint against the registry and tool set.
func NewHandler(cfg *config.Config, registry *Registry, dispatcher *tools.Dispatcher) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		tools:    dispatcher,
		connect: func(ctx context.Context, lc gemini.LiveConfig) (liveStream, error) {
			return gemini.Connect(ctx, lc)
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.WithPrefix("Bridge"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed: %v", err)
		return
	}
	h.HandleCall(r.Context(), conn)
}

// HandleCall runs one call end to end on the given telephony connection. It
// returns when the call has fully finished; the connection is closed on all
// paths.
func (h *Handler) HandleCall(ctx context.Context, conn telephony.Conn) {
	defer conn.Close()

	ingress := telephony.NewIngress(conn)

	// The stream must open with a start frame; nothing is known about the
	// call until it arrives.
	ev, err := ingress.Next()
	if err != nil {
		h.log.Error("Stream ended before start frame: %v", err)
		return
	}
	if ev.Type != telephony.EventStart {
		h.log.Error("First frame was not start, dropping connection")
		return
	}
	start := ev.Start

	callUUID := uuid.NewString()
	log := logger.WithPrefix("Bridge " + callUUID[:8])
	log.Info("Call started (streamSid %s)", start.StreamSid)

	rec, err := recording.NewRecorder(h.cfg.RecordingsDir, callUUID)
	if err != nil {
		log.Error("Failed to open recording: %v", err)
		return
	}

	instruction, err := gemini.FetchSystemInstruction(ctx, h.cfg.SysInstEndpoint)
	if err != nil {
		log.Error("Failed to build system instruction: %v", err)
		rec.Close()
		return
	}

	live, err := h.connect(ctx, gemini.LiveConfig{
		APIKey:            h.cfg.GeminiKey,
		Model:             h.cfg.GeminiModel,
		Voice:             h.cfg.GeminiVoice,
		SystemInstruction: instruction,
		Tools:             h.tools.Declarations(),
	})
	if err != nil {
		log.Error("Failed to establish model session: %v", err)
		rec.Close()
		return
	}

	call := &Call{
		UUID:         callUUID,
		StreamSid:    start.StreamSid,
		CallSid:      start.CallSid,
		CustomParams: start.CustomParameters,
		StartedAt:    time.Now(),
		Recorder:     rec,
		Egress:       telephony.NewEgress(conn, start.StreamSid),
		Transcript:   transcript.NewLog(),
	}
	h.registry.Add(call)

	shipper := transcript.NewShipper(h.cfg.LogEndpoint, callUUID, rec.FileName(), h.cfg.LogChunkSize, call.Transcript)
	shipper.Init(ctx, call.StartedAt, call.CustomParams)

	sess := newSession(call, conn, ingress, live, h.tools, shipper, h.registry)
	if err := sess.Run(ctx); err != nil {
		log.Error("Call ended with error: %v", err)
	}
}
