package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aldarlabs/voicebridge/src/audio"
	"github.com/aldarlabs/voicebridge/src/logger"
)

// Conn is the subset of *websocket.Conn the telephony layer needs. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// maxMalformed is the number of consecutive unparseable frames tolerated
// before the call is considered broken.
const maxMalformed = 3

// ErrMalformedStream signals too many consecutive malformed frames.
var ErrMalformedStream = errors.New("telephony: too many consecutive malformed frames")

// EventType identifies a decoded ingress event.
type EventType int

const (
	EventStart EventType = iota
	EventMedia
	EventStop
)

// Event is one decoded frame from the telephony stream. Media events carry
// PCM16/16 kHz audio; the µ-law decode and 8→16 kHz upsample have already
// been applied.
type Event struct {
	Type  EventType
	Start *Start
	PCM   []byte
}

// Ingress decodes the inbound half of a Twilio Media Stream. The resampler
// state is per-call and preserved across frames.
type Ingress struct {
	conn      Conn
	resampler *audio.Resampler
	log       *logger.Logger
	malformed int
}

// NewIngress wraps a telephony WebSocket connection.
func NewIngress(conn Conn) *Ingress {
	return &Ingress{
		conn:      conn,
		resampler: audio.NewResampler(8000, 16000),
		log:       logger.WithPrefix("TwilioWS"),
	}
}

// Next blocks for the next meaningful event. `connected` and `mark` frames
// are skipped; a malformed frame is logged and skipped, and three in a row
// return ErrMalformedStream. A closed connection returns the read error.
// The produced event sequence is finite and not restartable.
func (in *Ingress) Next() (*Event, error) {
	for {
		_, raw, err := in.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		ev, err := in.decode(raw)
		if err != nil {
			in.malformed++
			in.log.Warn("Skipping malformed frame (%d/%d): %v", in.malformed, maxMalformed, err)
			if in.malformed >= maxMalformed {
				return nil, ErrMalformedStream
			}
			continue
		}
		in.malformed = 0

		if ev != nil {
			return ev, nil
		}
	}
}

// decode parses a single frame. A nil event with nil error means the frame
// is valid but carries nothing for the bridge (connected, mark).
func (in *Ingress) decode(raw []byte) (*Event, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("bad JSON: %w", err)
	}

	switch msg.Event {
	case "start":
		if msg.Start == nil || msg.Start.StreamSid == "" {
			return nil, fmt.Errorf("start frame missing streamSid")
		}
		return &Event{Type: EventStart, Start: msg.Start}, nil

	case "media":
		if msg.Media == nil || msg.Media.Payload == "" {
			return nil, fmt.Errorf("media frame missing payload")
		}
		mulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("bad media payload: %w", err)
		}
		pcm16k := in.resampler.Process(audio.MulawToPCM(mulaw))
		return &Event{Type: EventMedia, PCM: audio.PCMToBytes(pcm16k)}, nil

	case "stop":
		return &Event{Type: EventStop}, nil

	case "connected":
		in.log.Debug("Stream connected")
		return nil, nil

	case "mark":
		// Echo of an egress mark, nothing to do.
		return nil, nil

	case "":
		return nil, fmt.Errorf("frame missing event field")

	default:
		in.log.Debug("Ignoring unknown event %q", msg.Event)
		return nil, nil
	}
}
