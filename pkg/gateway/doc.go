// Package gateway implements the WebSocket side of the L2D-Bridge: it
// accepts avatar client connections, performs the handshake, enforces
// the connection limit with optional old-client eviction, and routes
// every inbound packet to its handler.
//
// The gateway owns three pieces of shared state, each a field on an
// explicitly constructed service object: the connection Registry, the
// resource store it serves resource.* ops from, and the request
// Correlator that pairs server-issued model.*/desktop.* commands with
// their replies. Outbound chat content enters through the Server's
// perform methods, which compile it with the sequence package.
package gateway
