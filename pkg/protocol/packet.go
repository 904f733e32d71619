package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedPacket is returned by Decode when a frame is not valid JSON
// or is missing a required envelope field.
var ErrMalformedPacket = errors.New("protocol: malformed packet")

// ErrorInfo is the error half of a packet envelope.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Packet is the protocol envelope. Payload and Error are mutually
// exclusive at the semantic level: a packet is either a normal message or
// an error report, never both.
type Packet struct {
	Op      Op             `json:"op"`
	ID      string         `json:"id"`
	TS      int64          `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   *ErrorInfo     `json:"error,omitempty"`
}

// GenerateID returns a fresh packet id.
func GenerateID() string {
	return uuid.NewString()
}

// Timestamp returns the current time in Unix milliseconds.
func Timestamp() int64 {
	return time.Now().UnixMilli()
}

// NewPacket builds a packet with a fresh id and the current timestamp.
func NewPacket(op Op, payload map[string]any) *Packet {
	return &Packet{
		Op:      op,
		ID:      GenerateID(),
		TS:      Timestamp(),
		Payload: payload,
	}
}

// NewReply builds a packet answering the given request id.
func NewReply(op Op, requestID string, payload map[string]any) *Packet {
	return &Packet{
		Op:      op,
		ID:      requestID,
		TS:      Timestamp(),
		Payload: payload,
	}
}

// NewErrorPacket builds a sys.error packet. When requestID is empty a
// fresh id is generated, otherwise the error references the originating
// exchange.
func NewErrorPacket(code int, message, requestID string) *Packet {
	if requestID == "" {
		requestID = GenerateID()
	}
	return &Packet{
		Op:    OpError,
		ID:    requestID,
		TS:    Timestamp(),
		Error: &ErrorInfo{Code: code, Message: message},
	}
}

// IsError reports whether the packet carries an error envelope.
func (p *Packet) IsError() bool {
	return p.Error != nil
}

// Encode serializes the packet to a JSON text frame. Optional fields are
// emitted only when set, so the envelope is deterministic for a given
// packet value.
func (p *Packet) Encode() ([]byte, error) {
	if p.Op == "" || p.ID == "" {
		return nil, fmt.Errorf("%w: missing op or id", ErrMalformedPacket)
	}
	return json.Marshal(p)
}

// rawPacket mirrors Packet with pointer fields so Decode can distinguish
// absent envelope fields from zero values.
type rawPacket struct {
	Op      *string         `json:"op"`
	ID      *string         `json:"id"`
	TS      *int64          `json:"ts"`
	Payload map[string]any  `json:"payload"`
	Error   json.RawMessage `json:"error"`
}

// Decode parses a text frame into a Packet. Binary frames are decoded
// defensively as UTF-8 with replacement runes before parsing. A frame
// missing op, id, or ts, or carrying them with the wrong type, fails with
// ErrMalformedPacket.
func Decode(data []byte) (*Packet, error) {
	text := strings.ToValidUTF8(string(data), "�")

	var raw rawPacket
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if raw.Op == nil || raw.ID == nil || raw.TS == nil {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedPacket)
	}

	p := &Packet{
		Op:      Op(*raw.Op),
		ID:      *raw.ID,
		TS:      *raw.TS,
		Payload: raw.Payload,
	}
	if len(raw.Error) > 0 && string(raw.Error) != "null" {
		var ei ErrorInfo
		if err := json.Unmarshal(raw.Error, &ei); err != nil {
			return nil, fmt.Errorf("%w: bad error field: %v", ErrMalformedPacket, err)
		}
		p.Error = &ei
	}
	return p, nil
}

// String returns a compact description for logging.
func (p *Packet) String() string {
	if p.Error != nil {
		return fmt.Sprintf("Packet{op=%s id=%s error=%d}", p.Op, p.ID, p.Error.Code)
	}
	return fmt.Sprintf("Packet{op=%s id=%s}", p.Op, p.ID)
}
