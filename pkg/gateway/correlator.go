package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lxfight/astrbot-plugin-live2d-adapter/pkg/protocol"
)

// PacketSender is the outbound half a correlated request needs.
// *Client implements it.
type PacketSender interface {
	Send(p *protocol.Packet) error
}

// Correlator pairs server-issued commands with the client replies that
// echo their packet id. Each id has exactly one waiter, resolved once.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan map[string]any
	logger  *slog.Logger
}

// NewCorrelator returns an empty correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		pending: make(map[string]chan map[string]any),
		logger:  logger.With("component", "correlator"),
	}
}

// Request sends the packet to the client and blocks until a reply with
// the same id arrives, the timeout elapses, or ctx is done. The pending
// entry is removed on every exit path.
func (r *Correlator) Request(ctx context.Context, c PacketSender, p *protocol.Packet, timeout time.Duration) (map[string]any, error) {
	r.mu.Lock()
	if _, exists := r.pending[p.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, p.ID)
	}
	ch := make(chan map[string]any, 1)
	r.pending[p.ID] = ch
	r.mu.Unlock()

	if err := c.Send(p); err != nil {
		r.remove(p.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		r.remove(p.ID)
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, p.Op, timeout)
	case <-ctx.Done():
		r.remove(p.ID)
		return nil, ctx.Err()
	}
}

// Resolve delivers a reply payload to the waiter for id. It reports
// false for unknown or already-resolved ids, so duplicate and late
// replies are safe no-ops.
func (r *Correlator) Resolve(id string, payload map[string]any) bool {
	r.mu.Lock()
	ch, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

// PendingCount returns the number of outstanding waiters.
func (r *Correlator) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Correlator) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}
