package gemini

// Wire structures for the Gemini Live API (BidiGenerateContent over
// WebSocket). Client messages are built as generic maps since the API is
// lax about optional fields; server messages are decoded into these types.

// ServerMessage is one BidiGenerateContentServerMessage.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCallMsg   `json:"toolCall,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// SetupComplete indicates setup is complete (empty object per docs).
type SetupComplete struct{}

// UsageMetadata carries token accounting.
type UsageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount,omitempty"`
	ResponseTokenCount int `json:"responseTokenCount,omitempty"`
	TotalTokenCount    int `json:"totalTokenCount,omitempty"`
}

// ToolCallMsg requests execution of one or more declared functions.
type ToolCallMsg struct {
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
}

// FunctionCall is a single requested function invocation.
type FunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// FunctionResponse is the structured reply to one FunctionCall.
type FunctionResponse struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// ServerContent is BidiGenerateContentServerContent. Any subset of its
// fields may be present on one message.
type ServerContent struct {
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Transcription is a fragment of speech-to-text for either direction.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// ModelTurn carries the model's audio (and occasionally text) parts.
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is a single content part.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded inline media.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// FunctionDeclaration describes one callable tool in the session setup.
// Parameters follow the OpenAPI-style schema objects the API expects.
type FunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}
