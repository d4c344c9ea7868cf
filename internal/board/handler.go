package board

import (
	"daycal/internal/errors"
	"daycal/internal/gesture"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/store"
)

// The methods below implement gesture.Handler. The controller calls them with
// its own lock held.

var _ gesture.Handler = (*Board)(nil)

// Span reports an event's current span. Only the origin occurrence of a
// series is editable.
func (b *Board) Span(id, date string) (gesture.Span, bool) {
	ev, err := b.store.Get(id)
	if err != nil {
		return gesture.Span{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sp := gesture.Span{Start: ev.StartMinute, End: ev.EndMinute, Editable: date == "" || date == ev.Date}
	if live, ok := b.live[id]; ok && sp.Editable {
		sp.Start, sp.End = live.start, live.end
	}
	return sp, true
}

func (b *Board) OpenDraft(d model.Draft, mode gesture.SheetMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.Date == "" {
		d.Date = b.current
	}
	b.sheet = &Sheet{Mode: mode, Form: d}
}

func (b *Board) DiscardDraft() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sheet != nil && b.sheet.EventID == "" {
		b.sheet = nil
	}
}

func (b *Board) OpenEvent(id, date string) {
	ev, err := b.store.Get(id)
	if err != nil {
		appLog.Warn("board: tapped event no longer exists", "id", id)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if date == "" {
		date = ev.Date
	}
	b.sheet = &Sheet{
		Mode:         gesture.SheetOpen,
		EventID:      ev.ID,
		InstanceDate: date,
		ReadOnly:     date != ev.Date,
		Form: model.Draft{
			Date:        ev.Date,
			StartMinute: ev.StartMinute,
			EndMinute:   ev.EndMinute,
			Title:       ev.Title,
			ColorID:     ev.ColorID,
			Repeat:      ev.Repeat,
			Description: ev.Description,
		},
	}
}

func (b *Board) PreviewSpan(id string, start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live[id] = span{start: start, end: end}
}

// CommitSpan persists a finished drag or resize. A rejected span reverts the
// preview; a persistence failure keeps the in-memory change.
func (b *Board) CommitSpan(id string, start, end int) error {
	ctx, cancel := b.writeContext()
	defer cancel()

	_, err := b.store.Update(ctx, id, store.Patch{StartMinute: &start, EndMinute: &end})

	b.mu.Lock()
	delete(b.live, id)
	b.mu.Unlock()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrPersistence):
		appLog.Warn("board: moved event not persisted", "id", id, "err", err)
	default:
		appLog.Warn("board: span rejected, reverting", "id", id, "start", start, "end", end, "err", err)
	}
	return err
}

// EndSpan drops the preview of a finished drag or resize, including one
// that returned to where it started and committed nothing.
func (b *Board) EndSpan(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, id)
}

func (b *Board) TrackSwipe(dx float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swipeOffset = dx
}

func (b *Board) SettleSwipe(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swipeOffset = 0
	b.navigateLocked(delta)
}
