package transcript

import "sync"

// Speaker labels carried on every transcript entry.
const (
	SpeakerUser   = "user"
	SpeakerBot    = "bot"
	SpeakerSystem = "system"
)

// Entry is one speaker-labeled transcription fragment, in the wire form the
// log receiver expects.
type Entry struct {
	Name          string `json:"name"`
	Transcription string `json:"transcription"`
}

// Log is the ordered, append-only transcript of one call plus the shipping
// cursor. Entries at indices [0, ShippedIndex()) have been durably POSTed.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	shipped int
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// Append adds one entry to the transcript.
func (l *Log) Append(speaker, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Name: speaker, Transcription: text})
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ShippedIndex returns the shipping cursor.
func (l *Log) ShippedIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shipped
}

// Unshipped returns a copy of the entries past the shipping cursor and the
// cursor value itself.
func (l *Log) Unshipped() ([]Entry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := make([]Entry, len(l.entries)-l.shipped)
	copy(pending, l.entries[l.shipped:])
	return pending, l.shipped
}

// MarkShipped advances the cursor to upto. The cursor never moves backward.
func (l *Log) MarkShipped(upto int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if upto > len(l.entries) {
		upto = len(l.entries)
	}
	if upto > l.shipped {
		l.shipped = upto
	}
}

// Entries returns a copy of the full transcript.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
