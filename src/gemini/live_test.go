package gemini

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSetupMessage(t *testing.T) {
	msg := buildSetupMessage(LiveConfig{
		Model:             "gemini-2.5-flash-native-audio-latest",
		Voice:             "Puck",
		SystemInstruction: "Be brief.",
		Tools:             []FunctionDeclaration{{Name: "get_exchange_rate"}},
	})

	setup, ok := msg["setup"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "models/gemini-2.5-flash-native-audio-latest", setup["model"])

	gen := setup["generationConfig"].(map[string]interface{})
	assert.Equal(t, []string{"AUDIO"}, gen["responseModalities"])
	assert.Equal(t, map[string]interface{}{"thinkingBudget": 0}, gen["thinkingConfig"])
	require.Contains(t, gen, "speechConfig")

	// Both transcription directions must be on for the call log.
	assert.Contains(t, setup, "inputAudioTranscription")
	assert.Contains(t, setup, "outputAudioTranscription")

	sys := setup["systemInstruction"].(map[string]interface{})
	parts := sys["parts"].([]map[string]interface{})
	require.Len(t, parts, 1)
	assert.Equal(t, "Be brief.", parts[0]["text"])

	toolsBlock := setup["tools"].([]map[string]interface{})
	require.Len(t, toolsBlock, 1)
}

func TestBuildSetupMessageModelPathNotDoubled(t *testing.T) {
	msg := buildSetupMessage(LiveConfig{Model: "models/gemini-live"})
	setup := msg["setup"].(map[string]interface{})
	assert.Equal(t, "models/gemini-live", setup["model"])
}

func TestBuildSetupMessageOmitsEmptySections(t *testing.T) {
	msg := buildSetupMessage(LiveConfig{Model: "m"})
	setup := msg["setup"].(map[string]interface{})
	assert.NotContains(t, setup, "systemInstruction")
	assert.NotContains(t, setup, "tools")

	gen := setup["generationConfig"].(map[string]interface{})
	assert.NotContains(t, gen, "speechConfig")
}

func TestServerMessageDecode(t *testing.T) {
	raw := `{
		"serverContent": {
			"modelTurn": {"parts": [
				{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "` +
		base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}) + `"}}
			]},
			"outputTranscription": {"text": "Hello"},
			"turnComplete": true
		}
	}`

	var msg ServerMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.NotNil(t, msg.ServerContent)
	assert.True(t, msg.ServerContent.TurnComplete)
	assert.Equal(t, "Hello", msg.ServerContent.OutputTranscription.Text)
	assert.Equal(t, []byte{1, 2, 3, 4}, AudioData(&msg))
}

func TestServerMessageDecodeToolCall(t *testing.T) {
	raw := `{"toolCall": {"functionCalls": [
		{"id": "fc-1", "name": "get_exchange_rate", "args": {"rate_type": 1}}
	]}}`

	var msg ServerMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.NotNil(t, msg.ToolCall)
	require.Len(t, msg.ToolCall.FunctionCalls, 1)
	fc := msg.ToolCall.FunctionCalls[0]
	assert.Equal(t, "fc-1", fc.ID)
	assert.Equal(t, "get_exchange_rate", fc.Name)
	assert.Equal(t, float64(1), fc.Args["rate_type"])
}

func TestAudioDataConcatenatesParts(t *testing.T) {
	msg := &ServerMessage{ServerContent: &ServerContent{ModelTurn: &ModelTurn{
		Parts: []Part{
			{InlineData: &InlineData{Data: base64.StdEncoding.EncodeToString([]byte{1, 2})}},
			{}, // text-only part
			{InlineData: &InlineData{Data: base64.StdEncoding.EncodeToString([]byte{3, 4})}},
		},
	}}}
	assert.Equal(t, []byte{1, 2, 3, 4}, AudioData(msg))
}

func TestAudioDataNoContent(t *testing.T) {
	assert.Nil(t, AudioData(&ServerMessage{}))
	assert.Nil(t, AudioData(&ServerMessage{ServerContent: &ServerContent{}}))
}
