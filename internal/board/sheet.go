package board

import (
	"context"

	"daycal/internal/errors"
	"daycal/internal/gesture"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/store"
	"daycal/internal/timemath"
)

// Default span of the "new event" button.
const (
	newEventStart = 9 * 60
	newEventEnd   = 10 * 60
)

// Sheet is the edit session for a draft or an existing event.
type Sheet struct {
	Mode gesture.SheetMode `json:"mode"`

	// EventID is empty while editing a draft.
	EventID string `json:"event_id,omitempty"`
	// InstanceDate is the day the sheet was opened from.
	InstanceDate string `json:"instance_date,omitempty"`
	// ReadOnly is set when opened from a generated recurring occurrence.
	ReadOnly bool `json:"read_only"`

	Form  model.Draft `json:"form"`
	Error string      `json:"error,omitempty"`
}

// Form is a sheet save request with times as entered ("HH:MM").
type Form struct {
	Title       string           `json:"title"`
	StartTime   string           `json:"start_time"`
	EndTime     string           `json:"end_time"`
	ColorID     int              `json:"color_id"`
	Repeat      model.RepeatRule `json:"repeat"`
	Description string           `json:"description"`
}

// Sheet returns a copy of the open sheet, or nil.
func (b *Board) Sheet() *Sheet {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sheet == nil {
		return nil
	}
	sh := *b.sheet
	return &sh
}

// NewEventSheet opens a draft on the centred day from 09:00 to 10:00.
func (b *Board) NewEventSheet() Sheet {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sheet = &Sheet{
		Mode: gesture.SheetOpen,
		Form: model.Draft{
			Date:        b.current,
			StartMinute: newEventStart,
			EndMinute:   newEventEnd,
			ColorID:     model.DefaultColorID(),
			Repeat:      model.RepeatNone,
		},
	}
	return *b.sheet
}

// ExpandSheet turns a long-press preview into the full sheet.
func (b *Board) ExpandSheet() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sheet == nil {
		return errors.NewInvalidRequest("no sheet is open")
	}
	b.sheet.Mode = gesture.SheetOpen
	return nil
}

// SetSheetTimes updates the sheet's times. An end at or before the start is
// replaced by start + 60 minutes, capped at midnight.
func (b *Board) SetSheetTimes(startTime, endTime string) (Sheet, error) {
	start, err := timemath.ToMinutes(startTime)
	if err != nil {
		return Sheet{}, err
	}
	end, err := timemath.ToMinutes(endTime)
	if err != nil {
		return Sheet{}, err
	}
	if end <= start {
		end = start + 60
		if end > timemath.MinutesPerDay {
			end = timemath.MinutesPerDay
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sheet == nil {
		return Sheet{}, errors.NewInvalidRequest("no sheet is open")
	}
	b.sheet.Form.StartMinute = start
	b.sheet.Form.EndMinute = end
	return *b.sheet, nil
}

// SaveSheet creates or updates the sheet's event from f. A rejected save
// keeps the sheet open with the error attached. A persistence failure still
// closes the sheet: the change is applied in memory and the error returned.
func (b *Board) SaveSheet(ctx context.Context, f Form) (model.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sheet == nil {
		return model.Event{}, errors.NewInvalidRequest("no sheet is open")
	}
	if b.sheet.ReadOnly {
		err := errors.NewInvalidRequest("recurring occurrences are read-only; edit the first occurrence")
		b.sheet.Error = err.Message
		return model.Event{}, err
	}

	ev, err := b.saveLocked(ctx, f)
	switch {
	case err == nil:
		b.sheet = nil
	case errors.Is(err, errors.ErrPersistence):
		appLog.Warn("board: event saved in memory only", "id", ev.ID, "err", err)
		b.sheet = nil
	default:
		appLog.Warn("board: save rejected", "err", err)
		b.sheet.Error = err.Error()
	}
	return ev, err
}

func (b *Board) saveLocked(ctx context.Context, f Form) (model.Event, error) {
	start, err := timemath.ToMinutes(f.StartTime)
	if err != nil {
		return model.Event{}, err
	}
	end, err := timemath.ToMinutes(f.EndTime)
	if err != nil {
		return model.Event{}, err
	}
	b.sheet.Form.Title = f.Title
	b.sheet.Form.StartMinute = start
	b.sheet.Form.EndMinute = end
	b.sheet.Form.ColorID = f.ColorID
	b.sheet.Form.Repeat = f.Repeat
	b.sheet.Form.Description = f.Description

	if b.sheet.EventID == "" {
		return b.store.Create(ctx, b.sheet.Form)
	}

	delete(b.live, b.sheet.EventID)
	repeat := f.Repeat
	return b.store.Update(ctx, b.sheet.EventID, store.Patch{
		StartMinute: &start,
		EndMinute:   &end,
		Title:       &f.Title,
		ColorID:     &f.ColorID,
		Repeat:      &repeat,
		Description: &f.Description,
	})
}

// DeleteSheetEvent deletes the event being edited and closes the sheet. On a
// draft sheet it only closes.
func (b *Board) DeleteSheetEvent(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sheet == nil {
		return errors.NewInvalidRequest("no sheet is open")
	}
	if b.sheet.ReadOnly {
		err := errors.NewInvalidRequest("recurring occurrences are read-only; delete the first occurrence")
		b.sheet.Error = err.Message
		return err
	}

	id := b.sheet.EventID
	b.sheet = nil
	if id == "" {
		return nil
	}
	delete(b.live, id)
	if err := b.store.Delete(ctx, id); err != nil {
		appLog.Warn("board: delete not persisted", "id", id, "err", err)
		return err
	}
	return nil
}

// CloseSheet discards the open sheet and any unsaved draft.
func (b *Board) CloseSheet() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sheet = nil
}
