package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aldarlabs/voicebridge/src/audio"
	"github.com/aldarlabs/voicebridge/src/gemini"
	"github.com/aldarlabs/voicebridge/src/logger"
	"github.com/aldarlabs/voicebridge/src/telephony"
	"github.com/aldarlabs/voicebridge/src/tools"
	"github.com/aldarlabs/voicebridge/src/transcript"
)

// errCallEnded signals a clean stop frame from the telephony side. It is the
// errgroup's cancellation vehicle, filtered out before Run returns.
var errCallEnded = errors.New("bridge: call ended")

const finalShipTimeout = 10 * time.Second

// liveStream is the model-session surface the loop drives. Satisfied by
// *gemini.LiveSession; tests substitute a scripted fake.
type liveStream interface {
	SendAudio(pcm []byte) error
	SendToolResponses(responses []gemini.FunctionResponse) error
	Receive() (*gemini.ServerMessage, error)
	Close() error
}

// Session bridges one telephony stream to one model session. Two goroutines
// run per session: the ingress pump (caller audio in) and the model pump
// (server messages out). All transcript and turn state is owned by the model
// pump and never touched elsewhere.
type Session struct {
	call     *Call
	conn     telephony.Conn
	ingress  *telephony.Ingress
	live     liveStream
	tools    *tools.Dispatcher
	shipper  *transcript.Shipper
	registry *Registry
	log      *logger.Logger

	liveMu   sync.Mutex
	liveOpen bool

	finishOnce sync.Once

	// Model pump state. recRS downsamples 24 kHz model audio to the
	// recording rate.
	recRS       *audio.Resampler
	botBuffer   string
	turnID      int
	droppedTurn int
}

func newSession(call *Call, conn telephony.Conn, ingress *telephony.Ingress, live liveStream,
	dispatcher *tools.Dispatcher, shipper *transcript.Shipper, registry *Registry) *Session {
	return &Session{
		call:        call,
		conn:        conn,
		ingress:     ingress,
		live:        live,
		tools:       dispatcher,
		shipper:     shipper,
		registry:    registry,
		log:         logger.WithPrefix("Bridge " + call.UUID[:8]),
		liveOpen:    true,
		recRS:       audio.NewResampler(24000, recordingRate),
		droppedTurn: -1,
	}
}

const recordingRate = 16000

// Run drives the session until the caller hangs up, the model session fails,
// or ctx is canceled. It always leaves the call fully finished: session
// closed, recording finalized, final transcript chunk shipped, registry
// entry removed.
func (s *Session) Run(ctx context.Context) error {
	defer s.finish()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pumpIngress() })
	g.Go(func() error { return s.pumpModel(ctx) })
	g.Go(func() error {
		// Unblock both pumps when the group winds down.
		<-ctx.Done()
		s.closeLive()
		s.conn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errCallEnded) {
		return nil
	}
	return err
}

// pumpIngress reads caller audio and routes it by mode: always to the
// recorder, to the model while the session is open, to the operator during a
// takeover.
func (s *Session) pumpIngress() error {
	for {
		ev, err := s.ingress.Next()
		if err != nil {
			if errors.Is(err, telephony.ErrMalformedStream) {
				s.log.Warn("Telephony stream broken: %v", err)
			}
			return errCallEnded
		}

		switch ev.Type {
		case telephony.EventStop:
			s.log.Info("Caller hung up")
			return errCallEnded

		case telephony.EventStart:
			s.log.Warn("Duplicate start frame, ignoring")

		case telephony.EventMedia:
			s.call.Recorder.Write(ev.PCM)

			if s.call.Mode() == ModeOperator {
				if op := s.call.Operator(); op != nil {
					if err := op.SendCustomerAudio(ev.PCM); err != nil {
						s.log.Warn("Operator channel failed, reverting to AI mode: %v", err)
						s.call.EndTakeover()
					}
				}
			}

			// The model keeps hearing the caller during a takeover so
			// transcription continues; only its audio output is muted.
			if s.isLiveOpen() {
				if err := s.live.SendAudio(ev.PCM); err != nil {
					if !s.isLiveOpen() {
						continue
					}
					return fmt.Errorf("model audio send failed: %w", err)
				}
			}
		}
	}
}

// pumpModel consumes server messages until the session ends. A transfer tool
// call closes the model session but leaves the call running.
func (s *Session) pumpModel(ctx context.Context) error {
	for {
		msg, err := s.live.Receive()
		if err != nil {
			if !s.isLiveOpen() {
				return nil
			}
			s.closeLive()
			return fmt.Errorf("model session receive failed: %w", err)
		}

		transfer, err := s.handleServerMessage(ctx, msg)
		if err != nil {
			return err
		}
		if transfer {
			s.closeLive()
			s.log.Info("Model session closed, awaiting operator")
			return nil
		}
	}
}

// handleServerMessage applies the per-message processing rules in order:
// interruption, tool calls, audio, input transcription, output
// transcription, turn boundary. A single message may carry several of these.
func (s *Session) handleServerMessage(ctx context.Context, msg *gemini.ServerMessage) (bool, error) {
	sc := msg.ServerContent

	if sc != nil && sc.Interrupted {
		if err := s.call.Egress.Clear(); err != nil {
			s.log.Warn("Clear frame failed: %v", err)
		}
		s.droppedTurn = s.turnID
		if s.botBuffer != "" {
			s.call.Transcript.Append(transcript.SpeakerBot, s.botBuffer+" [interrupted]")
			s.botBuffer = ""
			s.shipper.MaybeShip(ctx)
		}
		s.log.Info("Barge-in: dropped pending playback")
	}

	transfer := false
	if msg.ToolCall != nil {
		var responses []gemini.FunctionResponse
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc.Name == tools.TransferToolName {
				reason, _ := fc.Args["reason"].(string)
				s.log.Info("Transfer to operator requested: %s", reason)
				s.call.Transcript.Append(transcript.SpeakerSystem, "transferring to human operator: "+reason)
				s.shipper.MaybeShip(ctx)
				s.call.MarkAwaitingOperator()
				transfer = true
				continue
			}
			responses = append(responses, s.tools.Dispatch(ctx, fc))
		}
		if len(responses) > 0 && !transfer {
			if err := s.live.SendToolResponses(responses); err != nil {
				return false, fmt.Errorf("tool response send failed: %w", err)
			}
		}
	}

	if pcm24 := gemini.AudioData(msg); len(pcm24) > 0 {
		s.call.Recorder.Write(s.recRS.ProcessBytes(pcm24))
		// Audio from an interrupted turn is recorded but never played.
		if s.call.Mode() == ModeAI && s.turnID != s.droppedTurn {
			if err := s.call.Egress.SendModelAudio(pcm24); err != nil {
				return transfer, fmt.Errorf("egress write failed: %w", err)
			}
		}
	}

	if sc != nil && sc.InputTranscription != nil {
		if text := strings.TrimSpace(sc.InputTranscription.Text); text != "" {
			s.flushBotBuffer(ctx)
			s.call.Transcript.Append(transcript.SpeakerUser, text)
			s.shipper.MaybeShip(ctx)
		}
	}

	if sc != nil && sc.OutputTranscription != nil {
		if frag := strings.TrimSpace(sc.OutputTranscription.Text); frag != "" {
			if s.botBuffer != "" {
				s.botBuffer += " "
			}
			s.botBuffer += frag
		}
	}

	if sc != nil && (sc.GenerationComplete || sc.TurnComplete) {
		s.flushBotBuffer(ctx)
		if sc.TurnComplete {
			s.turnID++
		}
	}

	return transfer, nil
}

func (s *Session) flushBotBuffer(ctx context.Context) {
	if s.botBuffer == "" {
		return
	}
	s.call.Transcript.Append(transcript.SpeakerBot, s.botBuffer)
	s.botBuffer = ""
	s.shipper.MaybeShip(ctx)
}

func (s *Session) isLiveOpen() bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	return s.liveOpen
}

func (s *Session) closeLive() {
	s.liveMu.Lock()
	open := s.liveOpen
	s.liveOpen = false
	s.liveMu.Unlock()

	if open {
		s.live.Close()
	}
}

// finish runs the terminal phase exactly once: close the model session,
// flush any buffered bot text, ship the final chunk, finalize the recording,
// deregister and close the telephony socket.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.closeLive()

		if s.botBuffer != "" {
			s.call.Transcript.Append(transcript.SpeakerBot, s.botBuffer)
			s.botBuffer = ""
		}

		ctx, cancel := context.WithTimeout(context.Background(), finalShipTimeout)
		defer cancel()
		s.shipper.Final(ctx)

		s.call.Recorder.Close()
		s.registry.Remove(s.call.UUID)
		s.conn.Close()
		s.log.Info("Call finished")
	})
}
