package watch

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/sunshine-watchface/internal/render"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// FrameSink receives every frame the engine paints.
type FrameSink interface {
	Present(render.Frame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(render.Frame)

func (f FrameSinkFunc) Present(fr render.Frame) { f(fr) }

// Options configure an Engine.
type Options struct {
	Clock      render.Clock
	TickPeriod time.Duration
	Render     render.Options
	// NewToken overrides the request nonce generator.
	NewToken func() string
}

// Engine is one watch-face instance. It owns its channel handle, snapshot,
// connection lifecycle and render scheduler, and runs all of them on a single
// serialized loop: host inputs, channel callbacks and timer ticks are posted
// as closures and executed one at a time.
type Engine struct {
	loop      *loop
	clock     render.Clock
	opts      render.Options
	sink      FrameSink
	holder    *weather.Holder
	conn      *Lifecycle
	requester *Requester
	receiver  *Receiver
	sched     *render.Scheduler

	// mirrors for readers outside the loop
	mu          sync.RWMutex
	status      Status
	transitions []Transition
	ambient     bool
	lastFrame   render.Frame
	hasFrame    bool
}

// NewEngine wires an engine to ch. Nothing happens until the face becomes visible.
func NewEngine(ch syncchan.Channel, sink FrameSink, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = render.SystemClock()
	}

	e := &Engine{
		loop:   newLoop(),
		clock:  clock,
		opts:   opts.Render,
		sink:   sink,
		holder: weather.NewHolder(),
	}

	e.requester = NewRequester(ch)
	if opts.NewToken != nil {
		e.requester.newToken = opts.NewToken
	}
	e.sched = render.NewScheduler(clock, opts.TickPeriod, func(f func()) { e.loop.post(f) }, e.redraw)
	e.receiver = NewReceiver(e.holder, func(weather.Snapshot) {
		// Show new weather now instead of waiting for the next tick.
		e.sched.ForceRedraw()
	})
	e.conn = NewLifecycle(ch, e.loop.post, func(ev syncchan.DataEvent) {
		_ = e.receiver.OnDataEvent(ev)
	}, func() {
		e.requester.EmitRequest()
	})
	e.conn.Observe(func(t Transition) {
		e.mu.Lock()
		e.status = t.To
		e.transitions = append(e.transitions, t)
		e.mu.Unlock()
	})
	return e
}

// Observe registers fn for connection transitions. fn runs on the engine loop.
// Register observers before the engine starts processing events.
func (e *Engine) Observe(fn func(Transition)) {
	e.conn.Observe(fn)
}

// Run processes events until ctx is done, then tears the engine down.
// Events posted after Run returns are dropped.
// Run and RunPending must not be used concurrently.
func (e *Engine) Run(ctx context.Context) error {
	e.loop.run(ctx)
	e.loop.drain()
	e.shutdown()
	e.loop.close()
	return nil
}

// RunPending processes queued events on the calling goroutine and returns how many ran.
func (e *Engine) RunPending() int {
	return e.loop.drain()
}

// SetVisible reports a visibility change from the host.
func (e *Engine) SetVisible(visible bool) {
	e.loop.post(func() {
		if visible {
			e.sched.Resume()
			e.conn.OnVisible()
			e.sched.SetVisible(true)
			return
		}
		// Cancel the render tick, then drop listeners, then disconnect.
		e.sched.SetVisible(false)
		e.conn.OnHidden()
	})
}

// SetAmbient reports an ambient-mode change from the host.
func (e *Engine) SetAmbient(ambient bool) {
	e.loop.post(func() {
		e.mu.Lock()
		e.ambient = ambient
		e.mu.Unlock()
		e.sched.SetAmbient(ambient)
	})
}

// TimeTick is the host's once-a-minute tick; it redraws once.
func (e *Engine) TimeTick() {
	e.loop.post(e.sched.ForceRedraw)
}

// Reconnect asks the lifecycle for a new connection attempt.
func (e *Engine) Reconnect() {
	e.loop.post(e.conn.Reconnect)
}

// Stop tears the engine down: no ticks, no listeners, disconnected.
// A later SetVisible(true) starts it again.
func (e *Engine) Stop() {
	e.loop.post(e.shutdown)
}

func (e *Engine) shutdown() {
	e.sched.SetVisible(false)
	e.sched.Stop()
	e.conn.OnHidden()
}

// Snapshot returns the current weather snapshot, if any. Safe from any goroutine.
func (e *Engine) Snapshot() (weather.Snapshot, bool) {
	return e.holder.Current()
}

// Status returns the last observed connection status. Safe from any goroutine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Transitions returns the connection transition log. Safe from any goroutine.
func (e *Engine) Transitions() []Transition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Transition, len(e.transitions))
	copy(out, e.transitions)
	return out
}

// LastFrame returns the most recently painted frame. Safe from any goroutine.
func (e *Engine) LastFrame() (render.Frame, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastFrame, e.hasFrame
}

// Frame renders the current state without painting it. Safe from any goroutine.
func (e *Engine) Frame() render.Frame {
	e.mu.RLock()
	ambient := e.ambient
	e.mu.RUnlock()
	return e.render(e.clock.Now(), ambient)
}

func (e *Engine) redraw(now time.Time) {
	frame := e.render(now, e.sched.Ambient())

	e.mu.Lock()
	e.lastFrame = frame
	e.hasFrame = true
	e.mu.Unlock()

	if e.sink != nil {
		e.sink.Present(frame)
	}
}

func (e *Engine) render(now time.Time, ambient bool) render.Frame {
	var snap *weather.Snapshot
	if s, ok := e.holder.Current(); ok {
		snap = &s
	}
	return render.Render(now, snap, ambient, e.opts)
}
