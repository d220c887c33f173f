package bridge

import (
	"sort"
	"sync"

	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

// Outlet is the sending side of a connected channel.
type Outlet interface {
	Kind() transport.Kind
	Deliver(proto.OutboundMessage) error
}

// OutletRegistry holds at most one outlet per transport kind.
type OutletRegistry struct {
	mu    sync.RWMutex
	store map[transport.Kind]Outlet
}

func NewOutletRegistry() *OutletRegistry {
	return &OutletRegistry{store: make(map[transport.Kind]Outlet)}
}

func (r *OutletRegistry) Store(o Outlet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[o.Kind()] = o
}

func (r *OutletRegistry) Get(kind transport.Kind) (Outlet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.store[kind]
	return o, ok
}

func (r *OutletRegistry) Delete(kind transport.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, kind)
}

// List returns the outlets ordered by kind.
func (r *OutletRegistry) List() []Outlet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outlets := make([]Outlet, 0, len(r.store))
	for _, o := range r.store {
		outlets = append(outlets, o)
	}
	sort.Slice(outlets, func(i, j int) bool { return outlets[i].Kind() < outlets[j].Kind() })
	return outlets
}

func framingFor(kind transport.Kind) proto.Transport {
	if kind == transport.KindMQTT {
		return proto.MqttTopic
	}
	return proto.DeviceLine
}
