package watch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/sunshine-watchface/internal/companion"
	"github.com/i474232898/sunshine-watchface/internal/render"
	"github.com/i474232898/sunshine-watchface/internal/store"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

var start = time.Date(2024, 3, 1, 9, 5, 0, 123_000_000, time.UTC)

type harness struct {
	hub    *syncchan.Hub
	watch  *syncchan.Node
	phone  *syncchan.Node
	clock  *render.ManualClock
	engine *Engine
	frames []render.Frame
}

func newHarness(t *testing.T, manual bool) *harness {
	t.Helper()
	h := &harness{clock: render.NewManualClock(start)}
	if manual {
		h.hub = syncchan.NewManualHub()
	} else {
		h.hub = syncchan.NewHub()
	}
	h.watch = h.hub.Node("watch")
	h.phone = h.hub.Node("phone")
	h.phone.Connect(syncchan.ConnectionHandlers{})

	n := 0
	h.engine = NewEngine(h.watch, FrameSinkFunc(func(f render.Frame) {
		h.frames = append(h.frames, f)
	}), Options{
		Clock:      h.clock,
		TickPeriod: 500 * time.Millisecond,
		Render:     render.Options{Use24Hour: true, Location: time.UTC},
		NewToken: func() string {
			n++
			return fmt.Sprintf("token-%d", n)
		},
	})
	return h
}

func (h *harness) states() []State {
	var out []State
	for _, tr := range h.engine.Transitions() {
		out = append(out, tr.To.State)
	}
	return out
}

func parisRow() weather.Snapshot {
	return weather.Snapshot{
		ObservedAtMs:     start.UnixMilli(),
		Location:         "Paris",
		WeatherID:        800,
		HighTempC:        21.4,
		LowTempC:         12.6,
		ShortDescription: "Clear",
	}
}

func TestEngineFetchesWeatherFromCompanion(t *testing.T) {
	h := newHarness(t, false)

	loc := weather.Location{City: "Paris", Country: "FR"}
	rows := store.NewMemoryStore(10, 0)
	rows.SaveSnapshot(loc, parisRow())
	responder := companion.NewResponder(h.phone, rows, loc)
	responder.Listen()

	h.engine.SetVisible(true)
	h.engine.RunPending()

	assert.Equal(t, []State{Connecting, Connected}, h.states())
	assert.Equal(t, 1, h.engine.requester.Sent())
	assert.Equal(t, 1, responder.Stats().Requests)
	assert.Equal(t, 1, responder.Stats().Pushed)

	snap, ok := h.engine.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "Paris", snap.Location)
	assert.Equal(t, 800, snap.WeatherID)
	assert.Equal(t, 21.4, snap.HighTempC)
	assert.Equal(t, 12.6, snap.LowTempC)
	assert.Equal(t, "Clear", snap.ShortDescription)

	// First frame had no data, the update forced a second one.
	require.Len(t, h.frames, 2)
	assert.False(t, h.frames[0].HasWeather)
	last, ok := h.engine.LastFrame()
	require.True(t, ok)
	assert.True(t, last.HasWeather)
	assert.Equal(t, "21°", last.High)
	assert.Equal(t, "13°", last.Low)
	assert.Equal(t, weather.ConditionClear, last.Condition)

	// Becoming visible again while connected sends nothing.
	h.engine.SetVisible(true)
	h.engine.RunPending()
	assert.Equal(t, 1, h.engine.requester.Sent())
}

func TestEngineRequestIsNeverCoalesced(t *testing.T) {
	h := newHarness(t, false)

	var requests []string
	h.phone.Subscribe(func(ev syncchan.DataEvent) {
		if ev.Path == weather.PathWeatherUpdate {
			token, _ := ev.Data.GetString(weather.KeyToken)
			requests = append(requests, token)
		}
	})

	for i := 0; i < 3; i++ {
		h.engine.SetVisible(true)
		h.engine.RunPending()
		h.engine.SetVisible(false)
		h.engine.RunPending()
	}

	assert.Equal(t, []string{"token-1", "token-2", "token-3"}, requests)
}

func TestEngineHiddenDropsInFlightUpdate(t *testing.T) {
	h := newHarness(t, true)

	h.engine.SetVisible(true)
	h.engine.RunPending()
	h.hub.Flush()
	h.engine.RunPending()
	require.Equal(t, Connected, h.engine.Status().State)
	h.hub.Flush()

	// The companion answers, but the reply is still in flight when the face is hidden.
	h.phone.Push(weather.PathWeather, weather.EncodeSnapshot(parisRow()), nil)
	require.Equal(t, 1, h.hub.Pending())

	h.engine.SetVisible(false)
	h.engine.RunPending()
	assert.False(t, h.engine.conn.Subscribed())
	assert.False(t, h.watch.IsConnected())
	assert.Zero(t, h.clock.Pending(), "no render tick may survive hiding")

	h.hub.Flush()
	h.engine.RunPending()

	_, ok := h.engine.Snapshot()
	assert.False(t, ok, "late update must not be applied")
	assert.Equal(t, Disconnected, h.engine.Status().State)

	framesBefore := len(h.frames)
	h.clock.Advance(5 * time.Second)
	h.engine.RunPending()
	assert.Len(t, h.frames, framesBefore)
}

type recordingChannel struct {
	syncchan.Channel
	clock *render.ManualClock
	calls []string
}

func (c *recordingChannel) Subscribe(l syncchan.Listener) syncchan.Subscription {
	return recordingSubscription{Subscription: c.Channel.Subscribe(l), ch: c}
}

func (c *recordingChannel) Disconnect() {
	c.calls = append(c.calls, fmt.Sprintf("disconnect ticks=%d", c.clock.Pending()))
	c.Channel.Disconnect()
}

type recordingSubscription struct {
	syncchan.Subscription
	ch *recordingChannel
}

func (s recordingSubscription) Unsubscribe() {
	s.ch.calls = append(s.ch.calls, fmt.Sprintf("unsubscribe ticks=%d", s.ch.clock.Pending()))
	s.Subscription.Unsubscribe()
}

func TestEngineHideTearsDownInOrder(t *testing.T) {
	hub := syncchan.NewHub()
	clock := render.NewManualClock(start)
	ch := &recordingChannel{Channel: hub.Node("watch"), clock: clock}
	e := NewEngine(ch, nil, Options{Clock: clock, TickPeriod: 500 * time.Millisecond})

	e.SetVisible(true)
	e.RunPending()
	require.Equal(t, Connected, e.Status().State)
	require.Equal(t, 1, clock.Pending())

	e.SetVisible(false)
	e.RunPending()
	assert.Equal(t, []string{"unsubscribe ticks=0", "disconnect ticks=0"}, ch.calls)
}

func TestEngineStopThenVisibleTicksAgain(t *testing.T) {
	h := newHarness(t, false)

	h.engine.SetVisible(true)
	h.engine.RunPending()
	h.engine.Stop()
	h.engine.RunPending()
	assert.Zero(t, h.clock.Pending())
	assert.False(t, h.watch.IsConnected())

	h.engine.SetVisible(true)
	h.engine.RunPending()
	assert.Equal(t, Connected, h.engine.Status().State)
	require.Equal(t, 1, h.clock.Pending())

	n := len(h.frames)
	h.clock.Advance(500 * time.Millisecond)
	h.engine.RunPending()
	assert.Len(t, h.frames, n+1)
}

func TestEngineIgnoresStaleConnectedCallback(t *testing.T) {
	h := newHarness(t, true)

	h.engine.SetVisible(true)
	h.engine.RunPending()
	h.engine.SetVisible(false)
	h.engine.RunPending()

	// OnConnected from the abandoned attempt arrives now.
	h.hub.Flush()
	h.engine.RunPending()

	assert.Equal(t, []State{Connecting, Disconnected}, h.states())
	assert.Zero(t, h.engine.requester.Sent())
	assert.False(t, h.engine.conn.Subscribed())
}

func TestEngineFailureAndReconnect(t *testing.T) {
	h := newHarness(t, false)
	h.watch.FailNextConnect("companion unreachable")

	h.engine.SetVisible(true)
	h.engine.RunPending()

	status := h.engine.Status()
	require.Equal(t, Failed, status.State)
	assert.Equal(t, "companion unreachable", status.Reason)
	var connErr *ConnectionError
	require.ErrorAs(t, status.Err(), &connErr)
	assert.Equal(t, "companion unreachable", connErr.Reason)
	assert.Zero(t, h.engine.requester.Sent())

	// The face keeps rendering without weather.
	require.NotEmpty(t, h.frames)
	assert.False(t, h.frames[len(h.frames)-1].HasWeather)

	h.engine.Reconnect()
	h.engine.RunPending()
	assert.Equal(t, []State{Connecting, Failed, Connecting, Connected}, h.states())
	assert.Equal(t, 1, h.engine.requester.Sent())
	assert.NoError(t, h.engine.Status().Err())
}

func TestEngineSuspendAndResume(t *testing.T) {
	h := newHarness(t, false)

	h.engine.SetVisible(true)
	h.engine.RunPending()

	h.watch.Suspend("link lost")
	h.engine.RunPending()
	assert.Equal(t, Status{State: Suspended, Reason: "link lost"}, h.engine.Status())

	// The platform restoring the link counts as a new connection.
	h.watch.Resume()
	h.engine.RunPending()
	assert.Equal(t, Connected, h.engine.Status().State)
	assert.Equal(t, 2, h.engine.requester.Sent())

	// Reconnect while connected is a no-op.
	h.engine.Reconnect()
	h.engine.RunPending()
	assert.Equal(t, 2, h.engine.requester.Sent())
}

func TestEngineAmbientAndTimeTick(t *testing.T) {
	h := newHarness(t, false)

	h.engine.SetVisible(true)
	h.engine.RunPending()
	require.Equal(t, 1, h.clock.Pending())

	h.engine.SetAmbient(true)
	h.engine.RunPending()
	assert.Zero(t, h.clock.Pending())
	last, _ := h.engine.LastFrame()
	assert.True(t, last.Ambient)
	assert.True(t, last.ShowSeparator)

	n := len(h.frames)
	h.clock.Advance(time.Minute)
	h.engine.RunPending()
	assert.Len(t, h.frames, n)

	h.engine.TimeTick()
	h.engine.RunPending()
	assert.Len(t, h.frames, n+1)
	assert.Equal(t, "09", h.frames[n].Hour)
	assert.Equal(t, "06", h.frames[n].Minute)
}

func TestEngineTicksWhileInteractive(t *testing.T) {
	h := newHarness(t, false)

	h.engine.SetVisible(true)
	h.engine.RunPending()

	for i := 0; i < 4; i++ {
		h.clock.Advance(500 * time.Millisecond)
		h.engine.RunPending()
	}
	// Initial frame plus ticks at .5, 1.0, 1.5, 2.0.
	require.Len(t, h.frames, 5)
	seps := []bool{}
	for _, f := range h.frames[1:] {
		seps = append(seps, f.ShowSeparator)
	}
	assert.Equal(t, []bool{false, true, false, true}, seps)
}

func TestEngineRunShutsDownOnCancel(t *testing.T) {
	hub := syncchan.NewHub()
	node := hub.Node("watch")
	e := NewEngine(node, nil, Options{Clock: render.NewManualClock(start)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()

	e.SetVisible(true)
	require.Eventually(t, func() bool { return e.Status().State == Connected }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, Disconnected, e.Status().State)
	assert.False(t, node.IsConnected())
	assert.False(t, e.loop.post(func() {}))
}
