package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/sequence"
)

// ModelInfo is the avatar model catalog the client declares via
// state.model: motion groups with their motion names, and expression
// ids.
type ModelInfo struct {
	Name         string
	MotionGroups map[string][]string
	Expressions  []string
}

// Client is one admitted connection. Writes are serialized by an
// internal mutex; gorilla/websocket allows only one concurrent writer.
type Client struct {
	ID          string
	Session     protocol.Session
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.RWMutex
	closed   bool
	ready    bool
	playing  bool
	lastSeen time.Time
	model    *ModelInfo
	config   map[string]any

	writeTimeout time.Duration
}

func newClient(id string, session protocol.Session, conn *websocket.Conn, writeTimeout time.Duration) *Client {
	now := time.Now()
	return &Client{
		ID:           id,
		Session:      session,
		ConnectedAt:  now,
		conn:         conn,
		lastSeen:     now,
		config:       make(map[string]any),
		writeTimeout: writeTimeout,
	}
}

// Send encodes and writes a packet to the client.
func (c *Client) Send(p *protocol.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("gateway: write to %s: %w", c.ID, err)
	}
	packetsSent.Inc()
	return nil
}

// SendError sends a sys.error packet. Errors are best-effort; a failed
// write surfaces on the read loop anyway.
func (c *Client) SendError(code int, message, requestID string) {
	c.Send(protocol.NewErrorPacket(code, message, requestID))
}

// Close writes a close frame with the given code and closes the
// transport. Safe to call more than once.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.conn == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.conn.Close()
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Touch refreshes the last-seen time.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last inbound frame.
func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// SetReady marks the client ready to receive performances.
func (c *Client) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Ready reports whether the client has signaled state.ready.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// SetPlaying records the client's playback state.
func (c *Client) SetPlaying(playing bool) {
	c.mu.Lock()
	c.playing = playing
	c.mu.Unlock()
}

// Playing reports whether a performance is currently playing.
func (c *Client) Playing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playing
}

// SetModel replaces the declared model catalog.
func (c *Client) SetModel(info *ModelInfo) {
	c.mu.Lock()
	c.model = info
	c.mu.Unlock()
}

// Model returns the declared model catalog, or nil before state.model.
func (c *Client) Model() *ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Catalog converts the declared model info into the validation catalog
// used by the sequence compiler. Nil when no model was declared.
func (c *Client) Catalog() *sequence.Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return nil
	}
	groups := make(map[string]int, len(c.model.MotionGroups))
	for name, motions := range c.model.MotionGroups {
		groups[name] = len(motions)
	}
	return &sequence.Catalog{
		MotionGroups: groups,
		Expressions:  append([]string(nil), c.model.Expressions...),
	}
}

// MergeConfig folds a state.config payload into the client's config.
func (c *Client) MergeConfig(values map[string]any) {
	c.mu.Lock()
	for k, v := range values {
		c.config[k] = v
	}
	c.mu.Unlock()
}

// Config returns a copy of the client's accumulated config.
func (c *Client) Config() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.config))
	for k, v := range c.config {
		out[k] = v
	}
	return out
}
