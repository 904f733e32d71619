package protocol

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewPacket(OpInputMessage, map[string]any{"text": "你好", "messageType": "text"})

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Op != p.Op {
		t.Errorf("op = %q, want %q", got.Op, p.Op)
	}
	if got.ID != p.ID {
		t.Errorf("id = %q, want %q", got.ID, p.ID)
	}
	if got.TS != p.TS {
		t.Errorf("ts = %d, want %d", got.TS, p.TS)
	}
	if got.Payload["text"] != "你好" {
		t.Errorf("payload text = %v, want 你好", got.Payload["text"])
	}
	if got.Error != nil {
		t.Errorf("error = %v, want nil", got.Error)
	}
}

func TestDecodeErrorPacket(t *testing.T) {
	p := NewErrorPacket(CodeAuthFailed, "authentication failed", "req-1")

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.IsError() {
		t.Fatal("IsError() = false, want true")
	}
	if got.Error.Code != CodeAuthFailed {
		t.Errorf("error code = %d, want %d", got.Error.Code, CodeAuthFailed)
	}
	if got.ID != "req-1" {
		t.Errorf("id = %q, want req-1", got.ID)
	}
}

func TestNewErrorPacketGeneratesID(t *testing.T) {
	p := NewErrorPacket(CodeInvalidPayload, "bad frame", "")
	if p.ID == "" {
		t.Error("id is empty, want generated")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"empty object", "{}"},
		{"missing id", `{"op":"sys.ping","ts":1700000000000}`},
		{"missing ts", `{"op":"sys.ping","id":"abc"}`},
		{"missing op", `{"id":"abc","ts":1700000000000}`},
		{"wrong op type", `{"op":42,"id":"abc","ts":1700000000000}`},
		{"wrong ts type", `{"op":"sys.ping","id":"abc","ts":"soon"}`},
		{"bad error field", `{"op":"sys.error","id":"abc","ts":1,"error":"nope"}`},
		{"json array", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformedPacket", tc.data, err)
			}
		})
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	// A frame with a stray invalid byte still parses after replacement.
	data := []byte(`{"op":"sys.ping","id":"a`)
	data = append(data, 0xff)
	data = append(data, []byte(`b","ts":1}`)...)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Op != OpPing {
		t.Errorf("op = %q, want %q", got.Op, OpPing)
	}
}

func TestDecodeUnknownOpAccepted(t *testing.T) {
	got, err := Decode([]byte(`{"op":"future.op","id":"abc","ts":1}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Op.Valid() {
		t.Error("Valid() = true for unknown op, want false")
	}
}

func TestEncodeRejectsEmptyEnvelope(t *testing.T) {
	p := &Packet{Op: OpPing}
	if _, err := p.Encode(); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("Encode() error = %v, want ErrMalformedPacket", err)
	}
}

func TestNewReplyReusesRequestID(t *testing.T) {
	p := NewReply(OpPong, "req-7", nil)
	if p.ID != "req-7" {
		t.Errorf("id = %q, want req-7", p.ID)
	}
}
