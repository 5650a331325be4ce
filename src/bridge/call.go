package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aldarlabs/voicebridge/src/recording"
	"github.com/aldarlabs/voicebridge/src/telephony"
	"github.com/aldarlabs/voicebridge/src/transcript"
)

// Mode says who is driving the caller-facing audio.
type Mode int32

const (
	// ModeAI routes model audio to the caller and caller audio to the model.
	ModeAI Mode = iota
	// ModeOperator routes caller audio to a joined operator and operator
	// audio to the caller. The model is out of the loop.
	ModeOperator
)

func (m Mode) String() string {
	if m == ModeOperator {
		return "OPERATOR"
	}
	return "AI"
}

// ErrAlreadyTaken is returned when a second operator tries to join a call.
var ErrAlreadyTaken = errors.New("bridge: call is already in operator mode")

// OperatorChannel is the outbound half of an operator connection. Implemented
// by the operator WebSocket handler.
type OperatorChannel interface {
	// SendCustomerAudio forwards one PCM16/16 kHz chunk of caller audio.
	SendCustomerAudio(pcm []byte) error
}

// Call is the shared state of one active call: identity, audio sinks and the
// takeover switch. Mode reads are lock-free; they happen on the hot audio
// path.
type Call struct {
	UUID         string
	StreamSid    string
	CallSid      string
	CustomParams map[string]string
	StartedAt    time.Time

	Recorder   *recording.Recorder
	Egress     *telephony.Egress
	Transcript *transcript.Log

	mode     atomic.Int32
	awaiting atomic.Bool

	opMu     sync.RWMutex
	operator OperatorChannel
}

// Mode returns the current routing mode.
func (c *Call) Mode() Mode {
	return Mode(c.mode.Load())
}

// MarkAwaitingOperator records that the model requested a transfer and the
// call is waiting for an operator to join.
func (c *Call) MarkAwaitingOperator() {
	c.awaiting.Store(true)
}

// AwaitingOperator reports whether a transfer was requested but no operator
// has joined yet.
func (c *Call) AwaitingOperator() bool {
	return c.awaiting.Load()
}

// BeginTakeover switches the call to operator mode and attaches the operator
// channel. Only one operator can hold a call at a time.
func (c *Call) BeginTakeover(ch OperatorChannel) error {
	if !c.mode.CompareAndSwap(int32(ModeAI), int32(ModeOperator)) {
		return ErrAlreadyTaken
	}
	c.opMu.Lock()
	c.operator = ch
	c.opMu.Unlock()
	c.awaiting.Store(false)
	return nil
}

// EndTakeover detaches the operator and returns the call to AI mode. Safe to
// call when no takeover is active.
func (c *Call) EndTakeover() {
	c.opMu.Lock()
	c.operator = nil
	c.opMu.Unlock()
	c.mode.Store(int32(ModeAI))
}

// Operator returns the attached operator channel, or nil.
func (c *Call) Operator() OperatorChannel {
	c.opMu.RLock()
	defer c.opMu.RUnlock()
	return c.operator
}
