package protocol

// Session identifies the conversation bound to a connection.
type Session struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// AckConfig is the server configuration block of a handshake ack.
type AckConfig struct {
	MaxMessageLength      int      `json:"maxMessageLength"`
	SupportedImageFormats []string `json:"supportedImageFormats"`
	SupportedAudioFormats []string `json:"supportedAudioFormats"`
	SupportedVideoFormats []string `json:"supportedVideoFormats"`
	MaxInlineBytes        int64    `json:"maxInlineBytes"`
	ResourceBaseURL       string   `json:"resourceBaseUrl,omitempty"`
}

// DefaultAckConfig returns the server configuration announced to clients
// that a handshake does not override.
func DefaultAckConfig() AckConfig {
	return AckConfig{
		MaxMessageLength:      5000,
		SupportedImageFormats: []string{"jpg", "png", "gif", "webp"},
		SupportedAudioFormats: []string{"mp3", "wav", "ogg"},
		SupportedVideoFormats: []string{"mp4", "webm", "mov"},
	}
}

// defaultFeatures are the server feature flags announced in every ack.
var defaultFeatures = []string{"message_chain", "tts_url", "multi_modal", "voice_input"}

// defaultCapabilities lists the ops the server accepts from this client.
var defaultCapabilities = []string{
	"input.message", "input.touch", "input.shortcut",
	"perform.show", "perform.interrupt",
	"resource.prepare", "resource.commit", "resource.get",
	"resource.release", "resource.progress",
	"state.ready", "state.playing", "state.config", "state.model",
}

// NewHandshakeAck builds the sys.handshake_ack answering the handshake
// with the given request id.
func NewHandshakeAck(requestID string, session Session, cfg AckConfig) *Packet {
	return NewReply(OpHandshakeAck, requestID, map[string]any{
		"version":      Version,
		"serverTime":   Timestamp(),
		"features":     defaultFeatures,
		"capabilities": defaultCapabilities,
		"config":       cfg,
		"session":      session,
	})
}

// NewPerformShow builds a perform.show packet carrying a performance
// sequence. interrupt tells the client whether to cancel the current
// performance before starting this one.
func NewPerformShow(sequence []Element, interrupt bool) *Packet {
	return NewPacket(OpPerformShow, map[string]any{
		"interrupt": interrupt,
		"sequence":  sequence,
	})
}

// NewPerformInterrupt builds a perform.interrupt packet.
func NewPerformInterrupt() *Packet {
	return NewPacket(OpPerformInterrupt, nil)
}

// NewPong builds the sys.pong answering a ping, echoing its id.
func NewPong(requestID string) *Packet {
	return NewReply(OpPong, requestID, map[string]any{"serverTime": Timestamp()})
}
