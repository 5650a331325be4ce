package operator

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aldarlabs/voicebridge/src/bridge"
	"github.com/aldarlabs/voicebridge/src/logger"
)

// clientMessage is any inbound operator frame. Control frames carry action;
// media frames carry type.
type clientMessage struct {
	Action   string `json:"action,omitempty"`
	Type     string `json:"type,omitempty"`
	CallUUID string `json:"call_uuid,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// serverMessage is any outbound operator frame.
type serverMessage struct {
	Type         string            `json:"type"`
	Calls        []bridge.CallInfo `json:"calls,omitempty"`
	CallUUID     string            `json:"call_uuid,omitempty"`
	CustomerInfo map[string]string `json:"customer_info,omitempty"`
	Audio        string            `json:"audio,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// Handler serves the operator console WebSocket endpoint. Operators list
// active calls, join one for a takeover and exchange audio with the caller.
type Handler struct {
	registry *bridge.Registry
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler wires the operator endpoint against the call registry.
func NewHandler(registry *bridge.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.WithPrefix("Operator"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed: %v", err)
		return
	}
	h.HandleConn(conn)
}

// Conn is the subset of *websocket.Conn the operator handler needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// operatorConn is one connected operator. It implements
// bridge.OperatorChannel so the session loop can push caller audio through
// it during a takeover.
type operatorConn struct {
	conn Conn
	log  *logger.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	joined *bridge.Call
}

// SendCustomerAudio forwards one PCM16/16 kHz caller chunk to the operator.
func (o *operatorConn) SendCustomerAudio(pcm []byte) error {
	return o.send(serverMessage{
		Type:  "customer_audio",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (o *operatorConn) send(msg serverMessage) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	return o.conn.WriteJSON(msg)
}

func (o *operatorConn) sendError(message string) {
	if err := o.send(serverMessage{Type: "error", Message: message}); err != nil {
		o.log.Warn("Failed to send error frame: %v", err)
	}
}

func (o *operatorConn) joinedCall() *bridge.Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joined
}

func (o *operatorConn) setJoined(c *bridge.Call) {
	o.mu.Lock()
	o.joined = c
	o.mu.Unlock()
}

// HandleConn runs one operator connection until it closes. A takeover held
// by the operator is released when the connection drops, returning the call
// to AI mode.
func (h *Handler) HandleConn(conn Conn) {
	o := &operatorConn{conn: conn, log: h.log}
	defer func() {
		if c := o.joinedCall(); c != nil {
			h.registry.EndTakeover(c.UUID)
			h.log.Info("Operator disconnected, call %s returned to AI mode", c.UUID)
		}
		conn.Close()
	}()

	h.log.Info("Operator connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			o.sendError("invalid message")
			continue
		}

		switch {
		case msg.Action == "list_calls":
			h.handleListCalls(o)

		case msg.Action == "join_call":
			h.handleJoinCall(o, msg.CallUUID)

		case msg.Type == "admin_audio":
			h.handleAdminAudio(o, msg.Audio)

		case msg.Type == "end_takeover":
			h.handleEndTakeover(o)

		default:
			o.sendError("unknown message")
		}
	}
}

func (h *Handler) handleListCalls(o *operatorConn) {
	calls := h.registry.List()
	if err := o.send(serverMessage{Type: "active_calls", Calls: calls}); err != nil {
		h.log.Warn("Failed to send call list: %v", err)
	}
}

func (h *Handler) handleJoinCall(o *operatorConn, callUUID string) {
	if callUUID == "" {
		o.sendError("call_uuid is required")
		return
	}
	if o.joinedCall() != nil {
		o.sendError("already joined a call")
		return
	}

	call, err := h.registry.RequestTakeover(callUUID, o)
	if err != nil {
		o.sendError(err.Error())
		return
	}
	o.setJoined(call)
	h.log.Info("Operator took over call %s", callUUID)

	if err := o.send(serverMessage{
		Type:         "takeover_success",
		CallUUID:     callUUID,
		CustomerInfo: call.CustomParams,
	}); err != nil {
		h.log.Warn("Failed to confirm takeover: %v", err)
	}
}

func (h *Handler) handleAdminAudio(o *operatorConn, audio string) {
	call := o.joinedCall()
	if call == nil {
		o.sendError("no call joined")
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		o.sendError("invalid audio payload")
		return
	}
	if len(pcm) == 0 {
		return
	}

	call.Recorder.Write(pcm)
	if err := call.Egress.SendOperatorAudio(pcm); err != nil {
		h.log.Warn("Failed to forward operator audio for call %s: %v", call.UUID, err)
	}
}

func (h *Handler) handleEndTakeover(o *operatorConn) {
	call := o.joinedCall()
	if call == nil {
		o.sendError("no call joined")
		return
	}

	h.registry.EndTakeover(call.UUID)
	o.setJoined(nil)
	h.log.Info("Operator released call %s", call.UUID)
}
