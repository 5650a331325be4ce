package telephony

import (
	"encoding/base64"
	"sync"

	"github.com/aldarlabs/voicebridge/src/audio"
)

// Egress encodes outbound audio for a Twilio Media Stream: resample to
// 8 kHz, compress to µ-law, base64-frame, write. Every frame echoes the
// streamSid assigned at start. Writes are serialized through one mutex; if
// the WebSocket write blocks, the caller blocks (single-writer discipline,
// no unbounded buffering).
type Egress struct {
	mu        sync.Mutex
	conn      Conn
	streamSid string

	// Per-source resampler state, preserved across chunks.
	modelRS    *audio.Resampler // 24 kHz model audio
	operatorRS *audio.Resampler // 16 kHz operator audio
}

// NewEgress creates an encoder bound to the stream started with streamSid.
func NewEgress(conn Conn, streamSid string) *Egress {
	return &Egress{
		conn:       conn,
		streamSid:  streamSid,
		modelRS:    audio.NewResampler(24000, 8000),
		operatorRS: audio.NewResampler(16000, 8000),
	}
}

// StreamSid returns the stream id echoed on every outbound frame.
func (e *Egress) StreamSid() string {
	return e.streamSid
}

// SendModelAudio encodes a PCM16/24 kHz chunk from the model and writes a
// media frame.
func (e *Egress) SendModelAudio(pcm24 []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pcm, err := audio.BytesToPCM(pcm24[:len(pcm24)&^1])
	if err != nil {
		return err
	}
	return e.writeMedia(e.modelRS.Process(pcm))
}

// SendOperatorAudio encodes a PCM16/16 kHz chunk from the operator channel
// and writes a media frame.
func (e *Egress) SendOperatorAudio(pcm16 []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pcm, err := audio.BytesToPCM(pcm16[:len(pcm16)&^1])
	if err != nil {
		return err
	}
	return e.writeMedia(e.operatorRS.Process(pcm))
}

func (e *Egress) writeMedia(pcm8k []int16) error {
	if len(pcm8k) == 0 {
		return nil
	}
	payload := base64.StdEncoding.EncodeToString(audio.PCMToMulaw(pcm8k))
	return e.conn.WriteJSON(Message{
		Event:     "media",
		StreamSid: e.streamSid,
		Media:     &Media{Payload: payload},
	})
}

// Clear asks the provider to drop buffered playback. Used on barge-in.
func (e *Egress) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(Message{
		Event:     "clear",
		StreamSid: e.streamSid,
	})
}

// SendMark emits a named mark frame; the provider echoes it back once the
// audio queued before it has played out.
func (e *Egress) SendMark(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(Message{
		Event:     "mark",
		StreamSid: e.streamSid,
		Mark:      &Mark{Name: name},
	})
}
