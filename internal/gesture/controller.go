// Package gesture turns a single pointer stream into tap, long-press, drag,
// edge-resize and swipe gestures and routes them to a Handler.
package gesture

import (
	"math"
	"sync"
	"time"

	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/timemath"
)

// Config holds the thresholds of the state machine.
type Config struct {
	// LongPress is how long a stationary press takes to become a long-press.
	LongPress time.Duration
	// JitterPx is the movement tolerated before a press is classified.
	JitterPx float64
	// SwipeDistanceRatio is the share of ViewportWidth a swipe must travel
	// to navigate on distance alone.
	SwipeDistanceRatio float64
	// SwipeVelocity is the fling threshold in px/ms.
	SwipeVelocity float64
	// FlingWindow is how far back velocity is measured from the release.
	FlingWindow time.Duration
	// ViewportWidth is the width of one day column in px.
	ViewportWidth float64
	// PxPerMinute is the vertical zoom factor of the grid.
	PxPerMinute float64
	// Quantum is the snap granularity and the minimum event duration.
	Quantum int
	// DefaultDuration is the length of drafts created by tap or long-press.
	DefaultDuration int
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LongPress:          400 * time.Millisecond,
		JitterPx:           10,
		SwipeDistanceRatio: 0.25,
		SwipeVelocity:      0.5,
		FlingWindow:        300 * time.Millisecond,
		ViewportWidth:      390,
		PxPerMinute:        1,
		Quantum:            timemath.DefaultQuantum,
		DefaultDuration:    60,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.LongPress <= 0 {
		c.LongPress = def.LongPress
	}
	if c.JitterPx <= 0 {
		c.JitterPx = def.JitterPx
	}
	if c.SwipeDistanceRatio <= 0 {
		c.SwipeDistanceRatio = def.SwipeDistanceRatio
	}
	if c.SwipeVelocity <= 0 {
		c.SwipeVelocity = def.SwipeVelocity
	}
	if c.FlingWindow <= 0 {
		c.FlingWindow = def.FlingWindow
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = def.ViewportWidth
	}
	if c.PxPerMinute <= 0 {
		c.PxPerMinute = def.PxPerMinute
	}
	if c.Quantum <= 0 {
		c.Quantum = def.Quantum
	}
	if c.DefaultDuration < c.Quantum {
		c.DefaultDuration = def.DefaultDuration
	}
}

// Span is the current time span of an event as seen by the handler.
type Span struct {
	Start    int
	End      int
	Editable bool
}

// Handler receives recognized gestures. Methods are called with the
// controller's lock held and must not call back into the Controller.
type Handler interface {
	// Span looks up the event a press started on. Editable is false for
	// read-only projections such as generated recurring instances.
	Span(id, date string) (Span, bool)

	// OpenDraft presents a new draft in the edit sheet.
	OpenDraft(d model.Draft, mode SheetMode)
	// DiscardDraft drops a draft opened by an interrupted long-press.
	DiscardDraft()
	// OpenEvent opens the edit sheet for a tapped event.
	OpenEvent(id, date string)

	// PreviewSpan reflects an in-progress drag or resize. Nothing is persisted.
	PreviewSpan(id string, start, end int)
	// CommitSpan persists the final span of a drag or resize.
	CommitSpan(id string, start, end int) error
	// EndSpan is called once for every drag or resize that ends, after any
	// CommitSpan, so the handler can drop its preview.
	EndSpan(id string)

	// TrackSwipe moves the day strip by dx pixels.
	TrackSwipe(dx float64)
	// SettleSwipe ends a swipe: delta is -1 or +1 to navigate, 0 to spring back.
	SettleSwipe(delta int)
}

// StateKind names the active state of the controller.
type StateKind string

const (
	StateIdle      StateKind = "idle"
	StatePending   StateKind = "pending"
	StateLongPress StateKind = "long-press"
	StateDragging  StateKind = "dragging"
	StateResizing  StateKind = "resizing"
	StateSwiping   StateKind = "swiping"
	StateScrolling StateKind = "scrolling"
)

// state is the tagged union of controller states. Exactly one is active.
type state interface {
	kind() StateKind
}

type idleState struct{}

type pendingState struct {
	timer Timer
}

type longPressState struct {
	draft model.Draft
}

type dragState struct {
	id                 string
	origStart, origEnd int
	start, end         int
}

type resizeState struct {
	id                 string
	top                bool
	origStart, origEnd int
	start, end         int
}

type swipeState struct {
	dx      float64
	samples []sample
}

type scrollState struct{}

func (idleState) kind() StateKind       { return StateIdle }
func (*pendingState) kind() StateKind   { return StatePending }
func (*longPressState) kind() StateKind { return StateLongPress }
func (*dragState) kind() StateKind      { return StateDragging }
func (*resizeState) kind() StateKind    { return StateResizing }
func (*swipeState) kind() StateKind     { return StateSwiping }
func (scrollState) kind() StateKind     { return StateScrolling }

// Session describes the active gesture for display and debugging.
type Session struct {
	State     StateKind `json:"state"`
	PointerID int       `json:"pointer_id"`
	Target    Target    `json:"target"`
	OriginX   float64   `json:"origin_x"`
	OriginY   float64   `json:"origin_y"`
	DeltaX    float64   `json:"delta_x"`
	DeltaY    float64   `json:"delta_y"`
}

// Controller is the single-pointer gesture state machine.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	h     Handler
	sched Scheduler

	// gen identifies the current session; timers from older sessions see a
	// different value and do nothing.
	gen    uint64
	origin PointerEvent
	last   PointerEvent
	st     state
}

// Option customizes a Controller.
type Option func(*Controller)

// WithScheduler replaces the time.AfterFunc based scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		c.sched = s
	}
}

// New creates a Controller routing gestures to h.
func New(cfg Config, h Handler, opts ...Option) *Controller {
	cfg.normalize()
	c := &Controller{
		cfg:   cfg,
		h:     h,
		sched: RealScheduler(),
		st:    idleState{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetViewportWidth updates the width swipe distances are measured against.
func (c *Controller) SetViewportWidth(w float64) {
	if w <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.ViewportWidth = w
	c.mu.Unlock()
}

// State returns the active state.
func (c *Controller) State() StateKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.kind()
}

// Session returns a snapshot of the active session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Session{State: c.st.kind()}
	if s.State == StateIdle {
		return s
	}
	s.PointerID = c.origin.PointerID
	s.Target = c.origin.Target
	s.OriginX = c.origin.X
	s.OriginY = c.origin.Y
	s.DeltaX = c.last.X - c.origin.X
	s.DeltaY = c.last.Y - c.origin.Y
	return s
}

// Handle feeds one pointer event into the state machine.
func (c *Controller) Handle(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case Down:
		c.down(ev)
	case Move:
		if !c.owns(ev) {
			return
		}
		c.last = ev
		c.move(ev)
	case Up:
		if !c.owns(ev) {
			return
		}
		c.last = ev
		c.up(ev)
	case Cancel:
		if !c.owns(ev) {
			return
		}
		c.cancel()
	default:
		appLog.Debug("gesture: ignoring unknown pointer kind", "kind", ev.Kind)
	}
}

// Reset cancels any active session as if the pointer had been cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
}

func (c *Controller) owns(ev PointerEvent) bool {
	if _, idle := c.st.(idleState); idle {
		return false
	}
	return ev.PointerID == c.origin.PointerID
}

func (c *Controller) down(ev PointerEvent) {
	if _, idle := c.st.(idleState); !idle {
		// A fresh press implicitly ends whatever the previous one left behind.
		c.cancel()
	}

	c.gen++
	c.origin = ev
	c.last = ev

	p := &pendingState{}
	if ev.Target.Kind == TargetGrid || ev.Target.Kind == "" {
		gen := c.gen
		p.timer = c.sched.AfterFunc(c.cfg.LongPress, func() { c.fireLongPress(gen) })
	}
	c.st = p
}

func (c *Controller) fireLongPress(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if _, ok := c.st.(*pendingState); !ok {
		return
	}

	d := c.draftAt(c.origin)
	c.st = &longPressState{draft: d}
	c.h.OpenDraft(d, SheetPreview)
}

func (c *Controller) move(ev PointerEvent) {
	switch s := c.st.(type) {
	case *pendingState:
		dx := ev.X - c.origin.X
		dy := ev.Y - c.origin.Y
		if math.Max(math.Abs(dx), math.Abs(dy)) <= c.cfg.JitterPx {
			return
		}
		stopTimer(s.timer)
		c.classify(ev, dx, dy)
	case *dragState:
		c.applyDrag(s, ev)
	case *resizeState:
		c.applyResize(s, ev)
	case *swipeState:
		c.trackSwipe(s, ev)
	}
}

// classify resolves a pending press once it has moved past the jitter radius.
func (c *Controller) classify(ev PointerEvent, dx, dy float64) {
	t := c.origin.Target
	if t.onEvent() {
		if span, ok := c.h.Span(t.EventID, t.Date); ok && span.Editable {
			switch t.Kind {
			case TargetHandleTop, TargetHandleBottom:
				s := &resizeState{
					id:        t.EventID,
					top:       t.Kind == TargetHandleTop,
					origStart: span.Start, origEnd: span.End,
					start: span.Start, end: span.End,
				}
				c.st = s
				c.applyResize(s, ev)
			default:
				s := &dragState{
					id:        t.EventID,
					origStart: span.Start, origEnd: span.End,
					start: span.Start, end: span.End,
				}
				c.st = s
				c.applyDrag(s, ev)
			}
			return
		}
	}

	if math.Abs(dx) > math.Abs(dy) {
		s := &swipeState{samples: []sample{{x: c.origin.X, at: c.origin.At}}}
		c.st = s
		c.trackSwipe(s, ev)
		return
	}
	c.st = scrollState{}
}

func (c *Controller) snappedDelta(ev PointerEvent) int {
	raw := timemath.PixelsToMinutes(ev.Y-c.origin.Y, c.cfg.PxPerMinute)
	return timemath.SnapFloat(raw, c.cfg.Quantum)
}

func (c *Controller) applyDrag(s *dragState, ev PointerEvent) {
	dur := s.origEnd - s.origStart
	start := timemath.Clamp(s.origStart+c.snappedDelta(ev), 0, timemath.MinutesPerDay-dur)
	end := start + dur
	if start == s.start && end == s.end {
		return
	}
	s.start, s.end = start, end
	c.h.PreviewSpan(s.id, start, end)
}

func (c *Controller) applyResize(s *resizeState, ev PointerEvent) {
	delta := c.snappedDelta(ev)
	minDur := c.cfg.Quantum
	start, end := s.origStart, s.origEnd
	if s.top {
		hi := s.origEnd - minDur
		if hi < 0 {
			hi = 0
		}
		start = timemath.Clamp(s.origStart+delta, 0, hi)
	} else {
		lo := s.origStart + minDur
		if lo > timemath.MinutesPerDay {
			lo = timemath.MinutesPerDay
		}
		end = timemath.Clamp(s.origEnd+delta, lo, timemath.MinutesPerDay)
	}
	if start == s.start && end == s.end {
		return
	}
	s.start, s.end = start, end
	c.h.PreviewSpan(s.id, start, end)
}

func (c *Controller) trackSwipe(s *swipeState, ev PointerEvent) {
	s.dx = ev.X - c.origin.X
	s.samples = append(s.samples, sample{x: ev.X, at: ev.At})
	s.samples = trimSamples(s.samples, ev.At, c.cfg.FlingWindow)
	c.h.TrackSwipe(s.dx)
}

func (c *Controller) up(ev PointerEvent) {
	switch s := c.st.(type) {
	case *pendingState:
		stopTimer(s.timer)
		t := c.origin.Target
		if t.onEvent() {
			c.h.OpenEvent(t.EventID, t.Date)
		} else {
			c.h.OpenDraft(c.draftAt(c.origin), SheetOpen)
		}
	case *longPressState:
		// The preview sheet stays up; the draft lives on until save or cancel.
	case *dragState:
		c.commit(s.id, s.origStart, s.origEnd, s.start, s.end)
	case *resizeState:
		c.commit(s.id, s.origStart, s.origEnd, s.start, s.end)
	case *swipeState:
		c.trackSwipe(s, ev)
		c.h.SettleSwipe(c.swipeDecision(s, ev.At))
	}
	c.finish()
}

func (c *Controller) cancel() {
	switch s := c.st.(type) {
	case *pendingState:
		stopTimer(s.timer)
	case *longPressState:
		c.h.DiscardDraft()
	case *dragState:
		c.commit(s.id, s.origStart, s.origEnd, s.start, s.end)
	case *resizeState:
		c.commit(s.id, s.origStart, s.origEnd, s.start, s.end)
	case *swipeState:
		c.h.SettleSwipe(0)
	}
	c.finish()
}

func (c *Controller) finish() {
	c.st = idleState{}
	c.gen++
}

// commit persists a drag or resize once, and only if the span moved. The
// preview is released either way.
func (c *Controller) commit(id string, origStart, origEnd, start, end int) {
	defer c.h.EndSpan(id)
	if start == origStart && end == origEnd {
		return
	}
	if err := c.h.CommitSpan(id, start, end); err != nil {
		appLog.Warn("gesture: commit rejected", "id", id, "start", start, "end", end, "err", err)
	}
}

// swipeDecision applies the distance-or-fling rule: navigate when the strip
// travelled far enough, or when the recent motion was fast enough.
func (c *Controller) swipeDecision(s *swipeState, releaseAt time.Time) int {
	if s.dx == 0 {
		return 0
	}
	direction := 1
	if s.dx > 0 {
		// Dragging the strip right reveals the previous day.
		direction = -1
	}

	if math.Abs(s.dx) > c.cfg.SwipeDistanceRatio*c.cfg.ViewportWidth {
		return direction
	}

	v := velocity(s.samples, releaseAt, c.cfg.FlingWindow)
	if math.Abs(v) > c.cfg.SwipeVelocity && (v > 0) == (s.dx > 0) {
		return direction
	}
	return 0
}

func (c *Controller) draftAt(p PointerEvent) model.Draft {
	dur := c.cfg.DefaultDuration
	start := timemath.SnapFloat(timemath.PixelsToMinutes(p.Y, c.cfg.PxPerMinute), c.cfg.Quantum)
	start = timemath.Clamp(start, 0, timemath.MinutesPerDay-dur)
	return model.Draft{
		Date:        p.Target.Date,
		StartMinute: start,
		EndMinute:   start + dur,
		ColorID:     model.DefaultColorID(),
		Repeat:      model.RepeatNone,
	}
}

func stopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
