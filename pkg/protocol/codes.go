package protocol

// System error codes (4xxx). These terminate or reject protocol exchanges.
const (
	CodeAuthFailed       = 4001
	CodeVersionMismatch  = 4002
	CodeInvalidPayload   = 4003
	CodeConnectionFull   = 4004
	CodeSessionNotExist  = 4005
	CodeResourceNotFound = 4006
)

// Business error codes (5xxx). The connection survives these.
const (
	CodeTTSFailed       = 5001
	CodeSTTFailed       = 5002
	CodePerformFailed   = 5003
	CodeUnsupportedType = 5004
	CodeUploadFailed    = 5005
	CodeResourceIO      = 5006
)

// WebSocket close codes used by the gateway.
const (
	CloseNormal          = 1000 // graceful close, e.g. evicted by a newer connection
	CloseGoingAway       = 1001 // server shutdown
	ClosePolicyViolation = 1008 // path mismatch, connection limit reached
)

// Version is the protocol version announced in the handshake ack.
// Clients must present a version with the same major component.
const Version = "1.0.0"

// VersionMajor is the accepted major version prefix ("1.").
const VersionMajor = "1."
