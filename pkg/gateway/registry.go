package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
)

// Registry is the bounded set of admitted connections, keyed by client
// id. Admission enforces MaxConnections, optionally evicting the oldest
// connection to make room.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	maxConnections int
	kickOld        bool
	logger         *slog.Logger

	totalAdmitted atomic.Uint64
	totalEvicted  atomic.Uint64

	// Best-effort lifecycle callbacks.
	onConnect    func(*Client)
	onDisconnect func(*Client)
}

// NewRegistry builds a registry holding at most maxConnections clients.
func NewRegistry(maxConnections int, kickOld bool, logger *slog.Logger) *Registry {
	if maxConnections <= 0 {
		maxConnections = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients:        make(map[string]*Client),
		maxConnections: maxConnections,
		kickOld:        kickOld,
		logger:         logger.With("component", "registry"),
	}
}

// OnConnect registers a callback run after each admission.
func (r *Registry) OnConnect(fn func(*Client)) { r.onConnect = fn }

// OnDisconnect registers a callback run after each removal.
func (r *Registry) OnDisconnect(fn func(*Client)) { r.onDisconnect = fn }

// Add admits a client. A reconnect with an already-registered id
// replaces the old connection. When the registry is full, the oldest
// connection is evicted if kickOld is set, otherwise admission fails
// with ErrConnectionLimit.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	if old, ok := r.clients[c.ID]; ok {
		delete(r.clients, c.ID)
		r.mu.Unlock()
		r.closeEvicted(old, "replaced by reconnect")
		r.mu.Lock()
	}

	for len(r.clients) >= r.maxConnections {
		if !r.kickOld {
			r.mu.Unlock()
			return ErrConnectionLimit
		}
		oldest := r.oldestLocked()
		delete(r.clients, oldest.ID)
		r.mu.Unlock()
		r.closeEvicted(oldest, "evicted by newer connection")
		r.mu.Lock()
	}

	r.clients[c.ID] = c
	size := len(r.clients)
	r.mu.Unlock()

	r.totalAdmitted.Add(1)
	connectionsTotal.Inc()
	activeConnections.Set(float64(size))
	r.logger.Info("client admitted", "client_id", c.ID, "active", size)
	if r.onConnect != nil {
		r.onConnect(c)
	}
	return nil
}

func (r *Registry) closeEvicted(c *Client, reason string) {
	r.totalEvicted.Add(1)
	evictionsTotal.Inc()
	r.logger.Info("client evicted", "client_id", c.ID, "reason", reason)
	c.Close(protocol.CloseNormal, reason)
	if r.onDisconnect != nil {
		r.onDisconnect(c)
	}
}

// oldestLocked returns the connection with the earliest admission time.
func (r *Registry) oldestLocked() *Client {
	var oldest *Client
	for _, c := range r.clients {
		if oldest == nil || c.ConnectedAt.Before(oldest.ConnectedAt) {
			oldest = c
		}
	}
	return oldest
}

// Remove drops a client if it is still the registered connection for
// its id. A stale connection that was already replaced is left alone.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	current, ok := r.clients[c.ID]
	if !ok || current != c {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.ID)
	size := len(r.clients)
	r.mu.Unlock()

	activeConnections.Set(float64(size))
	r.logger.Info("client removed", "client_id", c.ID, "active", size)
	if r.onDisconnect != nil {
		r.onDisconnect(c)
	}
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// First returns an arbitrary connected client. With the default single
// connection limit this is the client.
func (r *Registry) First() (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		return c, true
	}
	return nil, false
}

// All returns a snapshot of the registered clients.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Stats returns admission counters.
func (r *Registry) Stats() (admitted, evicted uint64) {
	return r.totalAdmitted.Load(), r.totalEvicted.Load()
}
