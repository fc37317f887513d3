// Package watch is the watch-side half of the weather sync protocol: the
// connection lifecycle, the update requester, the update receiver, and the
// Engine that runs them together with the render scheduler on one loop.
package watch

import (
	"fmt"
	"log"

	"github.com/i474232898/sunshine-watchface/internal/syncchan"
)

// State is the connection state of the sync channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Suspended
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Suspended:
		return "suspended"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a State plus the reason reported with Suspended or Failed.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (s Status) String() string {
	if s.Reason == "" {
		return s.State.String()
	}
	return fmt.Sprintf("%s(%s)", s.State, s.Reason)
}

// Err returns a ConnectionError for Failed, nil otherwise.
func (s Status) Err() error {
	if s.State != Failed {
		return nil
	}
	return &ConnectionError{Reason: s.Reason}
}

// ConnectionError is how a failed connection attempt is surfaced to callers.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return "sync channel connection failed: " + e.Reason
}

// Transition is one recorded state change.
type Transition struct {
	From  Status `json:"from"`
	To    Status `json:"to"`
	Cause string `json:"cause"`
}

// Lifecycle owns the sync channel connection for one engine. It connects when
// the face becomes visible and tears down when it is hidden. It never retries
// on its own: a failure is reported and Reconnect is left to the caller.
//
// All methods must run on the engine loop; channel callbacks are routed there
// through post. Every connection attempt gets a generation number, and
// callbacks from an older attempt are ignored.
type Lifecycle struct {
	ch          syncchan.Channel
	post        func(func()) bool
	listener    syncchan.Listener
	onConnected func()

	status    Status
	gen       uint64
	sub       syncchan.Subscription
	subGen    uint64
	log       []Transition
	observers []func(Transition)
}

// NewLifecycle creates a manager in Disconnected. listener receives data events
// while subscribed; onConnected runs once per successful connection.
func NewLifecycle(ch syncchan.Channel, post func(func()) bool, listener syncchan.Listener, onConnected func()) *Lifecycle {
	return &Lifecycle{
		ch:          ch,
		post:        post,
		listener:    listener,
		onConnected: onConnected,
	}
}

// Observe registers fn to be called after every transition.
func (l *Lifecycle) Observe(fn func(Transition)) {
	l.observers = append(l.observers, fn)
}

// Status returns the current status.
func (l *Lifecycle) Status() Status { return l.status }

// Transitions returns a copy of the transition log.
func (l *Lifecycle) Transitions() []Transition {
	out := make([]Transition, len(l.log))
	copy(out, l.log)
	return out
}

// OnVisible connects if there is no live or pending connection.
func (l *Lifecycle) OnVisible() {
	switch l.status.State {
	case Disconnected, Failed:
		l.connect("visible")
	default:
		log.Printf("DEBUG: lifecycle: visible while %s; nothing to do", l.status)
	}
}

// OnHidden removes the data listener, then disconnects.
func (l *Lifecycle) OnHidden() {
	switch l.status.State {
	case Connected, Suspended, Connecting:
		l.unsubscribe()
		l.ch.Disconnect()
		l.gen++
		l.transition(Status{State: Disconnected}, "hidden")
	case Failed:
		l.gen++
		l.transition(Status{State: Disconnected}, "hidden")
	}
}

// Reconnect starts a new attempt after a failure or suspension.
func (l *Lifecycle) Reconnect() {
	switch l.status.State {
	case Failed:
		l.connect("reconnect")
	case Suspended:
		l.unsubscribe()
		l.ch.Disconnect()
		l.connect("reconnect")
	default:
		log.Printf("DEBUG: lifecycle: reconnect ignored while %s", l.status)
	}
}

func (l *Lifecycle) connect(cause string) {
	l.gen++
	gen := l.gen
	l.transition(Status{State: Connecting}, cause)

	l.ch.Connect(syncchan.ConnectionHandlers{
		OnConnected: func() {
			l.post(func() { l.handleConnected(gen) })
		},
		OnSuspended: func(reason string) {
			l.post(func() { l.handleSuspended(gen, reason) })
		},
		OnFailed: func(reason string) {
			l.post(func() { l.handleFailed(gen, reason) })
		},
	})
}

func (l *Lifecycle) handleConnected(gen uint64) {
	if gen != l.gen {
		log.Printf("DEBUG: lifecycle: ignoring connected from stale attempt %d", gen)
		return
	}
	switch l.status.State {
	case Connecting, Suspended:
		// Listen before asking, so the reply cannot slip past.
		l.subscribe()
		l.transition(Status{State: Connected}, "connected")
		if l.onConnected != nil {
			l.onConnected()
		}
	default:
		log.Printf("lifecycle: ignoring connected while %s", l.status)
	}
}

func (l *Lifecycle) handleSuspended(gen uint64, reason string) {
	if gen != l.gen {
		log.Printf("DEBUG: lifecycle: ignoring suspension from stale attempt %d", gen)
		return
	}
	if l.status.State != Connected {
		log.Printf("lifecycle: ignoring suspension while %s: %s", l.status, reason)
		return
	}
	l.transition(Status{State: Suspended, Reason: reason}, "suspended")
}

func (l *Lifecycle) handleFailed(gen uint64, reason string) {
	if gen != l.gen {
		log.Printf("DEBUG: lifecycle: ignoring failure from stale attempt %d", gen)
		return
	}
	if l.status.State != Connecting {
		log.Printf("lifecycle: ignoring failure while %s: %s", l.status, reason)
		return
	}
	l.transition(Status{State: Failed, Reason: reason}, "failed")
}

func (l *Lifecycle) subscribe() {
	if l.sub != nil {
		return
	}
	l.subGen++
	gen := l.subGen
	l.sub = l.ch.Subscribe(func(ev syncchan.DataEvent) {
		l.post(func() {
			// The event may have been queued before the listener was removed.
			if l.sub == nil || gen != l.subGen {
				log.Printf("DEBUG: lifecycle: dropping %s event on %s after unsubscribe", ev.Type, ev.Path)
				return
			}
			l.listener(ev)
		})
	})
}

func (l *Lifecycle) unsubscribe() {
	if l.sub == nil {
		return
	}
	l.sub.Unsubscribe()
	l.sub = nil
}

// Subscribed reports whether the data listener is registered.
func (l *Lifecycle) Subscribed() bool { return l.sub != nil }

func (l *Lifecycle) transition(to Status, cause string) {
	t := Transition{From: l.status, To: to, Cause: cause}
	l.status = to
	l.log = append(l.log, t)
	log.Printf("lifecycle: %s -> %s (%s)", t.From, t.To, cause)
	for _, fn := range l.observers {
		fn(t)
	}
}
