package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aldarlabs/voicebridge/src/logger"
)

const shipTimeout = 5 * time.Second

// initPayload announces a new call to the log receiver.
type initPayload struct {
	CallUUID     string            `json:"call_uuid"`
	FileName     string            `json:"file_name"`
	StartedAt    string            `json:"started_at"`
	CustomParams map[string]string `json:"custom_params"`
}

// chunkPayload carries one batch of transcript entries.
type chunkPayload struct {
	CallUUID      string  `json:"call_uuid"`
	FileName      string  `json:"file_name"`
	Transcription []Entry `json:"transcription"`
	IsFinal       bool    `json:"is_final"`
	ChunkIndex    int     `json:"chunk_index"`
}

// Shipper POSTs transcript chunks to the external log receiver. Shipping is
// best effort: a failed POST is logged and the cursor does not advance, so
// the same entries go out again with the next chunk.
type Shipper struct {
	endpoint  string
	callUUID  string
	fileName  string
	chunkSize int

	tlog   *Log
	client *http.Client
	log    *logger.Logger
}

// NewShipper creates a shipper for one call. chunkSize is the entry count
// threshold that triggers a chunk POST; values below 1 fall back to 1.
func NewShipper(endpoint, callUUID, fileName string, chunkSize int, tlog *Log) *Shipper {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Shipper{
		endpoint:  endpoint,
		callUUID:  callUUID,
		fileName:  fileName,
		chunkSize: chunkSize,
		tlog:      tlog,
		client:    &http.Client{Timeout: shipTimeout},
		log:       logger.WithPrefix("Shipper"),
	}
}

// Init announces the call to the receiver with its metadata. Failure is
// logged but never terminates the call.
func (s *Shipper) Init(ctx context.Context, startedAt time.Time, customParams map[string]string) {
	if s.endpoint == "" {
		return
	}
	payload := initPayload{
		CallUUID:     s.callUUID,
		FileName:     s.fileName,
		StartedAt:    startedAt.UTC().Format(time.RFC3339),
		CustomParams: customParams,
	}
	if err := s.post(ctx, fmt.Sprintf("%s/%s", s.endpoint, s.callUUID), payload); err != nil {
		s.log.Warn("Init POST failed for call %s: %v", s.callUUID, err)
		return
	}
	s.log.Info("Initialized log stream for call %s", s.callUUID)
}

// MaybeShip sends the unshipped tail as a chunk once it has reached the
// configured size. The cursor advances only after a 2xx response.
func (s *Shipper) MaybeShip(ctx context.Context) {
	pending, from := s.tlog.Unshipped()
	if len(pending) < s.chunkSize {
		return
	}
	s.ship(ctx, pending, from, false)
}

// Final sends everything still unshipped with the final marker set. It
// always sends, even when nothing is pending, so the receiver learns the
// call ended.
func (s *Shipper) Final(ctx context.Context) {
	pending, from := s.tlog.Unshipped()
	s.ship(ctx, pending, from, true)
}

func (s *Shipper) ship(ctx context.Context, entries []Entry, from int, final bool) {
	if s.endpoint == "" {
		return
	}
	payload := chunkPayload{
		CallUUID:      s.callUUID,
		FileName:      s.fileName,
		Transcription: entries,
		IsFinal:       final,
		ChunkIndex:    from,
	}
	url := fmt.Sprintf("%s/%s/send_chunk", s.endpoint, s.callUUID)
	if err := s.post(ctx, url, payload); err != nil {
		s.log.Warn("Chunk POST failed for call %s (index %d, final=%v): %v", s.callUUID, from, final, err)
		return
	}
	s.tlog.MarkShipped(from + len(entries))
	s.log.Debug("Shipped %d entries for call %s (index %d, final=%v)", len(entries), s.callUUID, from, final)
}

func (s *Shipper) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
