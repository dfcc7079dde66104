// Package session holds the set of connections that are logged in and
// therefore eligible to receive broadcasts.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/metrics"
	"github.com/cyberinferno/go-chatcore/transport"
)

// Member is a connection that can be logged in. *transport.Conn implements it.
type Member interface {
	ID() transport.ID
	State() transport.State
	WriteFrame(body []byte, timeout time.Duration) error
	Abort() error
}

// BroadcastResult counts the outcome of one fan-out.
type BroadcastResult struct {
	Delivered int
	Failed    int
}

// Registry is the shared set of logged in members. Every operation takes the
// same mutex, including the whole of Broadcast.
type Registry struct {
	mu      sync.Mutex
	members map[transport.ID]Member

	writeTimeout time.Duration
	logger       logger.Logger
	metrics      *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithWriteTimeout bounds each broadcast write. Zero uses the transport default.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.writeTimeout = d
	}
}

// WithLogger sets the logger used to report failed deliveries.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the collectors updated by the registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{members: make(map[transport.ID]Member)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.NewNopLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}

	return r
}

// Login adds m to the registry.
//
// Returns:
//   - false if m is already closed, in which case it is not added; this keeps
//     a login that races with teardown from leaving a dead entry behind
func (r *Registry) Login(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.State() == transport.StateClosed {
		return false
	}

	r.members[m.ID()] = m
	r.metrics.RegistryMembers.Set(float64(len(r.members)))
	return true
}

// Logout removes id. Removing an absent id is not an error.
//
// Returns:
//   - true if id was a member
func (r *Registry) Logout(id transport.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[id]
	delete(r.members, id)
	r.metrics.RegistryMembers.Set(float64(len(r.members)))
	return ok
}

// Contains reports whether id is logged in.
func (r *Registry) Contains(id transport.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[id]
	return ok
}

// Size returns the number of members.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.members)
}

// Snapshot returns the member ids in ascending order.
func (r *Registry) Snapshot() []transport.ID {
	r.mu.Lock()
	ids := make([]transport.ID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Broadcast writes payload as one frame to every member except sender. A
// failed write does not stop delivery to the others. A member whose
// connection was lost is aborted so its owner tears it down; it stays in the
// registry until then.
//
// Parameters:
//   - sender: The id to skip; it need not be a member
//   - payload: The frame body
//
// Returns:
//   - Delivery counts
func (r *Registry) Broadcast(sender transport.ID, payload []byte) BroadcastResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res BroadcastResult
	for id, m := range r.members {
		if id == sender {
			continue
		}

		if err := m.WriteFrame(payload, r.writeTimeout); err != nil {
			res.Failed++
			r.logger.Warn("broadcast delivery failed",
				logger.Field{Key: "conn", Value: uint64(id)},
				logger.Field{Key: "error", Value: err.Error()})
			if errors.Is(err, transport.ErrConnectionLost) {
				_ = m.Abort()
			}
			continue
		}
		res.Delivered++
	}

	r.metrics.BroadcastDeliveries.WithLabelValues(metrics.DeliveryDelivered).Add(float64(res.Delivered))
	r.metrics.BroadcastDeliveries.WithLabelValues(metrics.DeliveryFailed).Add(float64(res.Failed))
	return res
}
