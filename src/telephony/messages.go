package telephony

// Twilio Media Streams WebSocket message structures. Incoming frames carry
// event ∈ {connected, start, media, stop, mark}; outgoing frames carry
// event ∈ {media, clear, mark}.

type Message struct {
	Event     string                 `json:"event"`
	StreamSid string                 `json:"streamSid,omitempty"`
	Media     *Media                 `json:"media,omitempty"`
	Start     *Start                 `json:"start,omitempty"`
	Mark      *Mark                  `json:"mark,omitempty"`
	Stop      map[string]interface{} `json:"stop,omitempty"`
}

type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64-encoded mulaw audio
}

type Start struct {
	StreamSid        string                 `json:"streamSid"`
	CallSid          string                 `json:"callSid"`
	AccountSid       string                 `json:"accountSid,omitempty"`
	Tracks           []string               `json:"tracks,omitempty"`
	MediaFormat      map[string]interface{} `json:"mediaFormat,omitempty"`
	CustomParameters map[string]string      `json:"customParameters,omitempty"`
}

type Mark struct {
	Name string `json:"name"`
}
