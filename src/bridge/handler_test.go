package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldarlabs/voicebridge/src/config"
	"github.com/aldarlabs/voicebridge/src/gemini"
	"github.com/aldarlabs/voicebridge/src/telephony"
	"github.com/aldarlabs/voicebridge/src/tools"
)

func newTestHandler(t *testing.T, reg *Registry) *Handler {
	t.Helper()
	cfg := &config.Config{
		GeminiKey:     "test-key",
		GeminiModel:   "gemini-live",
		GeminiVoice:   "Puck",
		LogChunkSize:  5,
		RecordingsDir: t.TempDir(),
	}
	return NewHandler(cfg, reg, tools.NewDispatcher())
}

func startFrame() telephony.Message {
	return telephony.Message{Event: "start", Start: &telephony.Start{
		StreamSid:        "MZ9",
		CallSid:          "CA9",
		CustomParameters: map[string]string{"from": "+97450000000"},
	}}
}

func TestHandleCallRejectsNonStartFirstFrame(t *testing.T) {
	cases := map[string]telephony.Message{
		"media": {Event: "media", Media: &telephony.Media{
			Payload: base64.StdEncoding.EncodeToString(make([]byte, 160)),
		}},
		"stop": {Event: "stop"},
	}

	for name, first := range cases {
		t.Run(name, func(t *testing.T) {
			reg := NewRegistry()
			h := newTestHandler(t, reg)
			h.connect = func(ctx context.Context, lc gemini.LiveConfig) (liveStream, error) {
				t.Error("model session must not be established without a start frame")
				return nil, errors.New("unexpected")
			}

			conn := newFakeTelephonyConn()
			conn.push(t, first)
			h.HandleCall(context.Background(), conn)

			assert.Empty(t, reg.List(), "no registry entry without a start frame")
			assert.True(t, conn.isClosed())
		})
	}
}

func TestHandleCallInstructionFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := NewRegistry()
	h := newTestHandler(t, reg)
	h.cfg.SysInstEndpoint = srv.URL
	h.connect = func(ctx context.Context, lc gemini.LiveConfig) (liveStream, error) {
		t.Error("model session must not be established when construction fails")
		return nil, errors.New("unexpected")
	}

	conn := newFakeTelephonyConn()
	conn.push(t, startFrame())
	h.HandleCall(context.Background(), conn)

	assert.Empty(t, reg.List())
	assert.True(t, conn.isClosed())
}

func TestHandleCallModelConnectFailure(t *testing.T) {
	reg := NewRegistry()
	h := newTestHandler(t, reg)
	h.connect = func(ctx context.Context, lc gemini.LiveConfig) (liveStream, error) {
		return nil, errors.New("dial failed")
	}

	conn := newFakeTelephonyConn()
	conn.push(t, startFrame())
	h.HandleCall(context.Background(), conn)

	assert.Empty(t, reg.List())
	assert.True(t, conn.isClosed())
}

func TestHandleCallLifecycle(t *testing.T) {
	reg := NewRegistry()
	h := newTestHandler(t, reg)

	live := newFakeLive()
	var gotCfg gemini.LiveConfig
	h.connect = func(ctx context.Context, lc gemini.LiveConfig) (liveStream, error) {
		gotCfg = lc
		return live, nil
	}

	conn := newFakeTelephonyConn()
	conn.push(t, startFrame())

	done := make(chan struct{})
	go func() {
		h.HandleCall(context.Background(), conn)
		close(done)
	}()

	// The call registers once the start frame is accepted.
	require.Eventually(t, func() bool { return len(reg.List()) == 1 },
		time.Second, 5*time.Millisecond)
	infos := reg.List()
	assert.Equal(t, "+97450000000", infos[0].CustomParams["from"])

	conn.push(t, telephony.Message{Event: "stop"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call did not finish")
	}

	assert.Empty(t, reg.List(), "call deregisters at end")
	assert.True(t, conn.isClosed())
	assert.True(t, live.isClosed())
	assert.Equal(t, "gemini-live", gotCfg.Model)
	assert.Equal(t, "test-key", gotCfg.APIKey)

	matches, err := filepath.Glob(filepath.Join(h.cfg.RecordingsDir, "call_*.wav"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
