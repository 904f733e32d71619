// Package protocol implements the L2D-Bridge wire protocol.
//
// The protocol exchanges JSON text frames over a persistent duplex
// connection. Every frame carries a Packet envelope:
//
//	{"op": "sys.ping", "id": "<uuid>", "ts": 1700000000000, "payload": {...}}
//
// The op code selects the handler, the id correlates requests with
// responses, and ts is the sender's clock in Unix milliseconds. A packet
// carries either a payload or an error; a response to a request reuses the
// request's id.
//
// The package also defines the performance elements that make up a
// perform.show sequence (text bubbles, TTS audio, images, video, motions,
// expressions, waits) and builders for the common server-side packets.
package protocol
