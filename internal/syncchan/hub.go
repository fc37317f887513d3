package syncchan

import (
	"errors"
	"sync"
)

var (
	// ErrNotConnected is reported when pushing on a node that is not connected.
	ErrNotConnected = errors.New("sync channel not connected")
)

// Hub is an in-process sync layer shared by several nodes. It stores the
// latest DataMap per path and coalesces pushes equal to the stored item, which
// is how platform data layers de-duplicate writes.
//
// With manual delivery enabled every callback is queued until Flush, which
// lets tests hold events "in flight".
type Hub struct {
	mu      sync.Mutex
	items   map[string]DataMap
	nodes   []*Node
	manual  bool
	pending []func()
}

// NewHub creates a Hub that delivers callbacks synchronously.
func NewHub() *Hub {
	return &Hub{items: make(map[string]DataMap)}
}

// NewManualHub creates a Hub whose callbacks are queued until Flush.
func NewManualHub() *Hub {
	h := NewHub()
	h.manual = true
	return h
}

// Node attaches a new endpoint to the hub.
func (h *Hub) Node(name string) *Node {
	n := &Node{hub: h, name: name, listeners: make(map[int]Listener)}
	h.mu.Lock()
	h.nodes = append(h.nodes, n)
	h.mu.Unlock()
	return n
}

// Item returns a copy of the stored item for path.
func (h *Hub) Item(path string) (DataMap, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item, ok := h.items[path]
	return item.Clone(), ok
}

// Pending returns the number of queued callbacks in manual mode.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Flush runs queued callbacks, including any queued while flushing.
func (h *Hub) Flush() {
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return
		}
		fn := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()

		fn()
	}
}

func (h *Hub) deliver(fn func()) {
	h.mu.Lock()
	if h.manual {
		h.pending = append(h.pending, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

// store writes the item and returns the listeners that must see the change.
// A nil slice with changed=false means the write was coalesced.
func (h *Hub) store(from *Node, ev DataEvent) (listeners []Listener, changed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	existing, exists := h.items[ev.Path]
	switch ev.Type {
	case EventChanged:
		if exists && existing.Equal(ev.Data) {
			return nil, false
		}
		h.items[ev.Path] = ev.Data.Clone()
	case EventDeleted:
		if !exists {
			return nil, false
		}
		delete(h.items, ev.Path)
	}

	for _, n := range h.nodes {
		if n == from {
			continue
		}
		listeners = append(listeners, n.activeListeners()...)
	}
	return listeners, true
}

// Node is one endpoint of a Hub and implements Channel.
type Node struct {
	hub  *Hub
	name string

	mu        sync.Mutex
	connected bool
	handlers  ConnectionHandlers
	listeners map[int]Listener
	nextID    int
	failNext  string
}

var _ Channel = (*Node)(nil)

// Name returns the node name given to Hub.Node.
func (n *Node) Name() string { return n.name }

// FailNextConnect makes the next Connect report OnFailed with reason.
func (n *Node) FailNextConnect(reason string) {
	n.mu.Lock()
	n.failNext = reason
	n.mu.Unlock()
}

func (n *Node) Connect(h ConnectionHandlers) {
	n.mu.Lock()
	n.handlers = h
	reason := n.failNext
	n.failNext = ""
	if reason == "" {
		n.connected = true
	}
	n.mu.Unlock()

	if reason != "" {
		if h.OnFailed != nil {
			n.hub.deliver(func() { h.OnFailed(reason) })
		}
		return
	}
	if h.OnConnected != nil {
		n.hub.deliver(h.OnConnected)
	}
}

func (n *Node) Disconnect() {
	n.mu.Lock()
	n.connected = false
	n.handlers = ConnectionHandlers{}
	n.mu.Unlock()
}

func (n *Node) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

// Suspend simulates the platform dropping the link without a Disconnect call.
func (n *Node) Suspend(reason string) {
	n.mu.Lock()
	n.connected = false
	h := n.handlers
	n.mu.Unlock()

	if h.OnSuspended != nil {
		n.hub.deliver(func() { h.OnSuspended(reason) })
	}
}

// Resume simulates the platform restoring a suspended link on its own.
func (n *Node) Resume() {
	n.mu.Lock()
	n.connected = true
	h := n.handlers
	n.mu.Unlock()

	if h.OnConnected != nil {
		n.hub.deliver(h.OnConnected)
	}
}

func (n *Node) Push(path string, data DataMap, done PushResult) {
	n.publish(DataEvent{Type: EventChanged, Path: path, Data: data.Clone()}, done)
}

// Delete removes the item at path and notifies peers.
func (n *Node) Delete(path string, done PushResult) {
	n.publish(DataEvent{Type: EventDeleted, Path: path}, done)
}

func (n *Node) publish(ev DataEvent, done PushResult) {
	if !n.IsConnected() {
		if done != nil {
			n.hub.deliver(func() { done(ErrNotConnected) })
		}
		return
	}

	listeners, changed := n.hub.store(n, ev)
	if changed {
		for _, l := range listeners {
			l := l
			evCopy := ev
			evCopy.Data = ev.Data.Clone()
			n.hub.deliver(func() { l(evCopy) })
		}
	}
	if done != nil {
		n.hub.deliver(func() { done(nil) })
	}
}

func (n *Node) Subscribe(l Listener) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	return &hubSubscription{node: n, id: id}
}

func (n *Node) activeListeners() []Listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return nil
	}
	out := make([]Listener, 0, len(n.listeners))
	for i := 0; i < n.nextID; i++ {
		if l, ok := n.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

type hubSubscription struct {
	node *Node
	id   int
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.node.mu.Lock()
		delete(s.node.listeners, s.id)
		s.node.mu.Unlock()
	})
}
