package orbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/orbus.go/pkg/framework"
)

// Handler is called for each received packet of a registered category.
type Handler interface {
	HandlePacket(context.Context, *Packet)
}

// HandlePacketFunc is func type of Handler.
type HandlePacketFunc func(context.Context, *Packet)

// HandlePacket implements Handler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt *Packet) {
	f(ctx, pkt)
}

// Registry maps categories to handlers and routes received packets.
type Registry struct {
	handlers map[byte]Handler
	lock     sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[byte]Handler)}
}

// Register binds a handler to the category.
// An existing binding is never replaced.
func (r *Registry) Register(category byte, h Handler) error {
	if category == CategoryAlive {
		return fmt.Errorf("%w: %d", ErrReservedCategory, category)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[byte]Handler)
	}
	if _, exists := r.handlers[category]; exists {
		return fmt.Errorf("%w: category %d", ErrDuplicateRegistration, category)
	}
	r.handlers[category] = h
	return nil
}

// Clear removes the handler of the category.
func (r *Registry) Clear(category byte) {
	r.lock.Lock()
	delete(r.handlers, category)
	r.lock.Unlock()
}

// ClearAll removes all handlers.
func (r *Registry) ClearAll() {
	r.lock.Lock()
	r.handlers = make(map[byte]Handler)
	r.lock.Unlock()
}

// Lookup gets the handler bound to the category.
func (r *Registry) Lookup(category byte) (Handler, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	h, ok := r.handlers[category]
	return h, ok
}

// Dispatch invokes handlers in packet order.
// Unknown categories don't stop the batch, each one is reported
// as an UnknownTypeError in the returned aggregated error.
func (r *Registry) Dispatch(ctx context.Context, pkts []*Packet) error {
	var errs fx.AggregatedError
	for _, pkt := range pkts {
		if pkt.IsAlive() {
			glog.V(4).Info("alive")
			continue
		}
		h, ok := r.Lookup(pkt.Category)
		if !ok {
			err := &UnknownTypeError{Category: pkt.Category, Command: pkt.Command}
			glog.Warningf("dispatch: %v", err)
			errs.Add(err)
			continue
		}
		h.HandlePacket(ctx, pkt)
	}
	return errs.Aggregate()
}
