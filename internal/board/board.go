// Package board holds the state of one day board: which day is centred,
// the open edit sheet, in-flight gesture previews and the now-indicator.
// It ties the store, recurrence expansion, layout and the gesture controller
// together and is safe for concurrent use.
package board

import (
	"context"
	"sync"
	"time"

	"daycal/internal/clock"
	"daycal/internal/gesture"
	"daycal/internal/layout"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/recur"
	"daycal/internal/store"
	"daycal/internal/timemath"
)

// StripRadius is how many days are shown on either side of the current day.
const StripRadius = 2

// Options configures a Board.
type Options struct {
	Geometry   layout.Geometry
	Gesture    gesture.Config
	Recurrence recur.ExpandConfig

	// DefaultDuration is the length of drafts in minutes.
	DefaultDuration int
	// Timeout bounds store writes triggered by gestures.
	Timeout time.Duration

	Clock     clock.Clock
	Scheduler gesture.Scheduler
}

// Day is one column of the strip.
type Day struct {
	Date    string              `json:"date"`
	Weekday string              `json:"weekday"`
	Offset  int                 `json:"offset"`
	IsToday bool                `json:"is_today"`
	Current bool                `json:"current"`
	Events  []layout.ViewRecord `json:"events"`
}

// NowLine is the current-time indicator.
type NowLine struct {
	Date      string  `json:"date"`
	Minute    int     `json:"minute"`
	Time      string  `json:"time"`
	TopOffset float64 `json:"top_offset"`
	Visible   bool    `json:"visible"`
}

// Snapshot is everything a renderer needs to draw the board.
type Snapshot struct {
	CurrentDate string          `json:"current_date"`
	Today       string          `json:"today"`
	Days        []Day           `json:"days"`
	NowLine     NowLine         `json:"now_line"`
	Sheet       *Sheet          `json:"sheet,omitempty"`
	Gesture     gesture.Session `json:"gesture"`
	SwipeOffset float64         `json:"swipe_offset"`
	HourHeight  float64         `json:"hour_height"`
	Palette     []model.Color   `json:"palette"`
}

type span struct {
	start, end int
}

// Board is the application state. Lock order is gesture controller, then
// board, then store; the board never calls the controller with its lock held.
type Board struct {
	mu    sync.Mutex
	store *store.Store
	opts  Options
	ctrl  *gesture.Controller

	current     string
	today       string
	now         time.Time
	sheet       *Sheet
	live        map[string]span
	swipeOffset float64
}

// New builds a board centred on today.
func New(s *store.Store, opts Options) *Board {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Geometry.HourHeight <= 0 {
		opts.Geometry.HourHeight = 60
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 60
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	gc := opts.Gesture
	gc.PxPerMinute = timemath.PxPerMinute(opts.Geometry.HourHeight)
	gc.Quantum = s.Quantum()
	gc.DefaultDuration = opts.DefaultDuration

	b := &Board{
		store: s,
		opts:  opts,
		live:  make(map[string]span),
	}

	var ctrlOpts []gesture.Option
	if opts.Scheduler != nil {
		ctrlOpts = append(ctrlOpts, gesture.WithScheduler(opts.Scheduler))
	}
	b.ctrl = gesture.New(gc, b, ctrlOpts...)

	b.now = opts.Clock.Now()
	b.today = timemath.DateKey(b.now)
	b.current = b.today
	return b
}

// Store exposes the underlying event store.
func (b *Board) Store() *store.Store {
	return b.store
}

// CurrentDate is the centred day.
func (b *Board) CurrentDate() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SetDate centres the board on date.
func (b *Board) SetDate(date string) error {
	if _, err := timemath.ParseDate(date); err != nil {
		return err
	}
	b.mu.Lock()
	b.current = date
	b.mu.Unlock()
	return nil
}

// Navigate moves the centred day by delta days.
func (b *Board) Navigate(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigateLocked(delta)
}

func (b *Board) navigateLocked(delta int) {
	if delta == 0 {
		return
	}
	next, err := timemath.AddDays(b.current, delta)
	if err != nil {
		appLog.Warn("board: cannot navigate", "from", b.current, "delta", delta, "err", err)
		return
	}
	b.current = next
}

// GoToToday re-reads the clock and centres on today.
func (b *Board) GoToToday() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	b.current = b.today
}

// Days lists the dates of the strip, oldest first.
func (b *Board) Days() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stripLocked()
}

func (b *Board) stripLocked() []string {
	out := make([]string, 0, 2*StripRadius+1)
	for off := -StripRadius; off <= StripRadius; off++ {
		d, err := timemath.AddDays(b.current, off)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DayView lays out one day, including recurring projections and any
// in-progress drag or resize preview.
func (b *Board) DayView(date string) ([]layout.ViewRecord, error) {
	if _, err := timemath.ParseDate(date); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	views, err := b.viewsLocked(date, date)
	if err != nil {
		return nil, err
	}
	return views[date], nil
}

// viewsLocked expands and lays out every day in [from, to].
func (b *Board) viewsLocked(from, to string) (map[string][]layout.ViewRecord, error) {
	cfg := b.opts.Recurrence
	cfg.Range = model.DateRange{From: from, To: to}

	lookFrom, err := timemath.AddDays(from, -recur.Lookback(cfg))
	if err != nil {
		return nil, err
	}
	events := b.store.Query(model.DateRange{From: lookFrom, To: to})

	res, err := recur.Expand(events, cfg)
	if err != nil {
		return nil, err
	}
	for _, id := range res.TruncatedIDs {
		appLog.Debug("board: recurrence truncated", "id", id)
	}

	out := make(map[string][]layout.ViewRecord)
	date := from
	for date <= to {
		instances := recur.ForDay(res.Instances, date)
		for i := range instances {
			if instances[i].ReadOnly {
				continue
			}
			if sp, ok := b.live[instances[i].ID]; ok {
				instances[i].StartMinute = sp.start
				instances[i].EndMinute = sp.end
			}
		}
		out[date] = layout.Day(instances, b.opts.Geometry)

		next, err := timemath.AddDays(date, 1)
		if err != nil {
			return nil, err
		}
		date = next
	}
	return out, nil
}

// Snapshot captures the whole board for rendering.
func (b *Board) Snapshot() (Snapshot, error) {
	session := b.ctrl.Session()

	b.mu.Lock()
	defer b.mu.Unlock()

	strip := b.stripLocked()
	views, err := b.viewsLocked(strip[0], strip[len(strip)-1])
	if err != nil {
		return Snapshot{}, err
	}

	days := make([]Day, 0, len(strip))
	for i, date := range strip {
		t, _ := timemath.ParseDate(date)
		days = append(days, Day{
			Date:    date,
			Weekday: t.Weekday().String()[:3],
			Offset:  i - StripRadius,
			IsToday: date == b.today,
			Current: date == b.current,
			Events:  views[date],
		})
	}

	snap := Snapshot{
		CurrentDate: b.current,
		Today:       b.today,
		Days:        days,
		NowLine:     b.nowLineLocked(),
		Gesture:     session,
		SwipeOffset: b.swipeOffset,
		HourHeight:  b.opts.Geometry.HourHeight,
		Palette:     model.Palette,
	}
	if b.sheet != nil {
		sh := *b.sheet
		snap.Sheet = &sh
	}
	return snap, nil
}

// RefreshNow re-reads the clock. The refresher calls it at least once a minute.
func (b *Board) RefreshNow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
}

func (b *Board) refreshLocked() {
	b.now = b.opts.Clock.Now()
	today := timemath.DateKey(b.now)
	if today != b.today {
		appLog.Info("board: day rolled over", "from", b.today, "to", today)
		b.today = today
	}
}

// NowLine reports where the current-time indicator sits.
func (b *Board) NowLine() NowLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nowLineLocked()
}

func (b *Board) nowLineLocked() NowLine {
	minute := timemath.MinuteOfDay(b.now)
	visible := false
	for _, d := range b.stripLocked() {
		if d == b.today {
			visible = true
			break
		}
	}
	return NowLine{
		Date:      b.today,
		Minute:    minute,
		Time:      timemath.ToTimeString(minute),
		TopOffset: timemath.MinutesToPixels(float64(minute), timemath.PxPerMinute(b.opts.Geometry.HourHeight)),
		Visible:   visible,
	}
}

// HandlePointer feeds one pointer event to the gesture controller. A missing
// target date means the centred day.
func (b *Board) HandlePointer(ev gesture.PointerEvent) {
	if ev.Target.Date == "" {
		ev.Target.Date = b.CurrentDate()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.ctrl.Handle(ev)
}

// GestureState is the controller's active state.
func (b *Board) GestureState() gesture.StateKind {
	return b.ctrl.State()
}

// SetViewportWidth tells the controller how wide a day column is.
func (b *Board) SetViewportWidth(w float64) {
	b.ctrl.SetViewportWidth(w)
}

// Key handles a keyboard shortcut by key name. Unknown keys are ignored and
// reported as unhandled.
func (b *Board) Key(name string) bool {
	switch name {
	case "ArrowLeft":
		b.Navigate(-1)
	case "ArrowRight":
		b.Navigate(1)
	case "t", "T":
		b.GoToToday()
	case "Escape":
		b.mu.Lock()
		open := b.sheet != nil
		b.mu.Unlock()
		if !open {
			return false
		}
		b.CloseSheet()
	default:
		return false
	}
	return true
}

func (b *Board) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.opts.Timeout)
}
