package store

import (
	"encoding/json"

	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/timemath"
)

// record is the on-disk shape of an event. Lists written by the browser
// version of the board carry "HH:MM" times and a camelCase colour id; both
// shapes decode into the same record.
type record struct {
	model.Event

	StartTime     string `json:"startTime,omitempty"`
	EndTime       string `json:"endTime,omitempty"`
	LegacyColorID int    `json:"colorId,omitempty"`
}

func (r record) event() (model.Event, error) {
	ev := r.Event
	if r.StartTime != "" || r.EndTime != "" {
		start, err := timemath.ToMinutes(r.StartTime)
		if err != nil {
			return ev, err
		}
		end, err := timemath.ToMinutes(r.EndTime)
		if err != nil {
			return ev, err
		}
		ev.StartMinute, ev.EndMinute = start, end
	}
	if ev.ColorID == 0 && r.LegacyColorID != 0 {
		ev.ColorID = r.LegacyColorID
	}
	return ev, nil
}

// decode parses a stored list. Any structural problem yields an empty list;
// individual unusable records are skipped.
func decode(raw string) []model.Event {
	if raw == "" {
		return []model.Event{}
	}

	var records []record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		appLog.Warn("store: stored event list is malformed, starting empty", "err", err)
		return []model.Event{}
	}

	events := make([]model.Event, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		ev, err := r.event()
		if err != nil {
			appLog.Warn("store: skipping record with unreadable times", "index", i, "err", err)
			continue
		}
		if ev.ID == "" || seen[ev.ID] {
			appLog.Warn("store: skipping record without a unique id", "index", i, "id", ev.ID)
			continue
		}
		if _, err := timemath.ParseDate(ev.Date); err != nil {
			appLog.Warn("store: skipping record with bad date", "id", ev.ID, "date", ev.Date)
			continue
		}
		// The browser version persisted whatever the time inputs held, so old
		// lists can carry off-grid or inverted spans. Keep anything the grid can
		// still draw.
		if !model.ValidSpan(ev.StartMinute, ev.EndMinute, 1) {
			appLog.Warn("store: skipping record with invalid span", "id", ev.ID,
				"start", ev.StartMinute, "end", ev.EndMinute)
			continue
		}
		normalizeDefaults(&ev)
		seen[ev.ID] = true
		events = append(events, ev)
	}
	return events
}

func encode(events []model.Event) (string, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
