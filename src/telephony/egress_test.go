package telephony

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldarlabs/voicebridge/src/audio"
)

func TestEgressModelAudioFrame(t *testing.T) {
	// 480 samples of PCM16/24 kHz (20 ms) become one media frame carrying
	// 160 µ-law bytes at 8 kHz.
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")

	pcm24 := audio.PCMToBytes(make([]int16, 480))
	require.NoError(t, eg.SendModelAudio(pcm24))

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "media", writes[0].Event)
	assert.Equal(t, "MZ123", writes[0].StreamSid)

	payload, err := base64.StdEncoding.DecodeString(writes[0].Media.Payload)
	require.NoError(t, err)
	assert.Len(t, payload, 160)
	for _, b := range payload {
		assert.Equal(t, byte(0xFF), b, "silence encodes to 0xFF")
	}
}

func TestEgressOperatorAudioFrame(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")

	// 320 samples at 16 kHz (20 ms) downsample to 160 at 8 kHz.
	pcm16 := audio.PCMToBytes(make([]int16, 320))
	require.NoError(t, eg.SendOperatorAudio(pcm16))

	writes := conn.written()
	require.Len(t, writes, 1)
	payload, err := base64.StdEncoding.DecodeString(writes[0].Media.Payload)
	require.NoError(t, err)
	assert.Len(t, payload, 160)
}

func TestEgressOddLengthTrimmed(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")

	buf := append(audio.PCMToBytes(make([]int16, 480)), 0x01)
	require.NoError(t, eg.SendModelAudio(buf))
	require.Len(t, conn.written(), 1)
}

func TestEgressEmptyChunkWritesNothing(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")
	// Two 24 kHz samples yield one 8 kHz sample and leave the read
	// position past the next one-sample chunk, so that chunk produces no
	// output and no frame.
	require.NoError(t, eg.SendModelAudio(audio.PCMToBytes(make([]int16, 2))))
	require.NoError(t, eg.SendModelAudio(audio.PCMToBytes(make([]int16, 1))))
	assert.Len(t, conn.written(), 1)
}

func TestEgressClear(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")
	require.NoError(t, eg.Clear())

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "clear", writes[0].Event)
	assert.Equal(t, "MZ123", writes[0].StreamSid)
}

func TestEgressMark(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")
	require.NoError(t, eg.SendMark("end"))

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "mark", writes[0].Event)
	require.NotNil(t, writes[0].Mark)
	assert.Equal(t, "end", writes[0].Mark.Name)
}

func TestEgressResamplerStateCarries(t *testing.T) {
	conn := &fakeConn{}
	eg := NewEgress(conn, "MZ123")

	// Repeated 20 ms chunks all produce full frames; no drift from the
	// carried fractional position.
	pcm24 := audio.PCMToBytes(make([]int16, 480))
	for i := 0; i < 5; i++ {
		require.NoError(t, eg.SendModelAudio(pcm24))
	}
	writes := conn.written()
	require.Len(t, writes, 5)
	for _, w := range writes {
		payload, err := base64.StdEncoding.DecodeString(w.Media.Payload)
		require.NoError(t, err)
		assert.Len(t, payload, 160)
	}
}
