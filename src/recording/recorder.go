package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aldarlabs/voicebridge/src/logger"
)

// SampleRate is the fixed rate of every recording this service produces.
// Customer, model and operator audio are all converted to this rate before
// being handed to the recorder.
const SampleRate = 16000

// headerFlushInterval is the number of writes between mid-stream header
// rewrites, bounding data loss if the process dies before Close.
const headerFlushInterval = 64

// Recorder appends both sides of a call to a single mono WAV file. All
// producers funnel through one writer goroutine, so customer, model and
// operator chunks interleave in arrival order without locking the file.
// The file is opened exactly once and closed exactly once.
type Recorder struct {
	path string
	log  *logger.Logger

	writes    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates the WAV file at dir/call_{callUUID}.wav and starts the
// writer. The directory is created if it does not exist.
func NewRecorder(dir, callUUID string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("call_%s.wav", callUUID))

	w, err := newWavWriter(path, SampleRate, 1)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		path:   path,
		log:    logger.WithPrefix("Recorder"),
		writes: make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	go r.run(w)
	r.log.Info("Created recording file %s", path)
	return r, nil
}

// Path returns the filesystem path of the WAV file.
func (r *Recorder) Path() string {
	return r.path
}

// FileName returns the base name of the recording, as reported to the log
// receiver.
func (r *Recorder) FileName() string {
	return filepath.Base(r.path)
}

func (r *Recorder) run(w *wavWriter) {
	defer close(r.done)

	n := 0
	for pcm := range r.writes {
		if err := w.WriteFrames(pcm); err != nil {
			r.log.Error("Write failed: %v", err)
			continue
		}
		n++
		if n%headerFlushInterval == 0 {
			if err := w.FlushHeader(); err != nil {
				r.log.Warn("Header flush failed: %v", err)
			}
		}
	}

	if err := w.Close(); err != nil {
		r.log.Error("Close failed: %v", err)
	}
}

// Write appends PCM16/16 kHz little-endian bytes to the recording. Writes
// after Close are dropped.
func (r *Recorder) Write(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	// Copy: callers reuse their buffers.
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	r.writes <- buf
	r.mu.RUnlock()
}

// Close drains pending writes, finalizes the WAV header and closes the file.
// Safe to call more than once.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.writes)
		r.mu.Unlock()
		<-r.done
		r.log.Info("Closed recording file %s", r.path)
	})
}
