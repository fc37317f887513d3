package render

import (
	"log"
	"time"
)

// DefaultInteractivePeriod redraws twice a second so the separator blinks once per second.
const DefaultInteractivePeriod = 500 * time.Millisecond

// ScheduleState is derived from visibility and ambient mode. Ambient mode
// reports Stopped: only the host's coarse tick redraws it.
type ScheduleState int

const (
	Stopped ScheduleState = iota
	RunningInteractive
)

func (s ScheduleState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case RunningInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Scheduler decides when the face is redrawn. Its periodic timer runs only
// while the face is visible and interactive; in ambient mode the host's coarse
// time tick drives redraws through ForceRedraw.
//
// Scheduler is not safe for concurrent use. All methods, and the timer
// callbacks routed through dispatch, must run on one serialized context.
type Scheduler struct {
	clock    Clock
	period   time.Duration
	dispatch func(func())
	redraw   func(now time.Time)

	visible bool
	ambient bool
	halted  bool

	pending  Timer
	deadline time.Time
	gen      uint64
	ticks    int
}

// NewScheduler creates a stopped scheduler. dispatch moves timer callbacks onto
// the owner's serialized context; nil runs them in place.
func NewScheduler(clock Clock, period time.Duration, dispatch func(func()), redraw func(now time.Time)) *Scheduler {
	if period <= 0 {
		period = DefaultInteractivePeriod
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Scheduler{
		clock:    clock,
		period:   period,
		dispatch: dispatch,
		redraw:   redraw,
	}
}

// SetVisible records visibility and starts or stops the periodic timer.
func (s *Scheduler) SetVisible(visible bool) {
	s.visible = visible
	s.updateTimer()
}

// SetAmbient records ambient mode; a change redraws once in the new mode.
func (s *Scheduler) SetAmbient(ambient bool) {
	changed := s.ambient != ambient
	s.ambient = ambient
	s.updateTimer()
	// A started timer has already drawn the first frame.
	if changed && !s.shouldRun() {
		s.ForceRedraw()
	}
}

// Stop cancels the pending tick and keeps the timer off until Resume.
func (s *Scheduler) Stop() {
	s.halted = true
	s.cancel()
}

// Resume lifts a Stop. It does nothing if the scheduler is not stopped.
func (s *Scheduler) Resume() {
	if !s.halted {
		return
	}
	s.halted = false
	s.updateTimer()
}

// ForceRedraw draws one frame now without touching the pending schedule.
func (s *Scheduler) ForceRedraw() {
	if s.redraw != nil {
		s.redraw(s.clock.Now())
	}
}

// State returns the derived schedule state.
func (s *Scheduler) State() ScheduleState {
	if !s.shouldRun() {
		return Stopped
	}
	return RunningInteractive
}

// TimerRunning reports whether a periodic tick is pending.
func (s *Scheduler) TimerRunning() bool {
	return s.pending != nil
}

// Deadline returns the pending tick's deadline, or the zero time.
func (s *Scheduler) Deadline() time.Time {
	return s.deadline
}

// Ticks returns how many periodic ticks have produced a frame.
func (s *Scheduler) Ticks() int {
	return s.ticks
}

// Ambient reports the last ambient mode set.
func (s *Scheduler) Ambient() bool {
	return s.ambient
}

func (s *Scheduler) shouldRun() bool {
	return s.visible && !s.ambient && !s.halted
}

func (s *Scheduler) updateTimer() {
	s.cancel()
	if s.shouldRun() {
		s.tick()
	}
}

// cancel drops the pending tick. Bumping gen also voids a callback that
// already fired and is waiting in dispatch.
func (s *Scheduler) cancel() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.deadline = time.Time{}
	s.gen++
}

// tick schedules the next tick before drawing so a slow frame cannot push the phase.
func (s *Scheduler) tick() {
	now := s.clock.Now()
	s.cancel()
	if s.shouldRun() {
		s.scheduleNext(now)
	}
	s.ticks++
	if s.redraw != nil {
		s.redraw(now)
	}
}

// scheduleNext aligns the next deadline to a multiple of the period since the epoch.
func (s *Scheduler) scheduleNext(now time.Time) {
	delay := s.period - time.Duration(now.UnixNano()%int64(s.period))
	gen := s.gen
	s.deadline = now.Add(delay)
	s.pending = s.clock.AfterFunc(delay, func() {
		s.dispatch(func() { s.fire(gen) })
	})
}

func (s *Scheduler) fire(gen uint64) {
	if gen != s.gen || !s.shouldRun() {
		log.Printf("DEBUG: scheduler: dropping cancelled tick")
		return
	}
	s.pending = nil
	s.tick()
}
