package model

import (
	"strings"

	"daycal/internal/errors"
	"daycal/internal/timemath"
)

// DefaultTitle replaces an empty title when a draft is saved.
const DefaultTitle = "(No title)"

// RepeatRule decides how many concrete instances an event materializes.
type RepeatRule string

const (
	RepeatNone    RepeatRule = "none"
	RepeatDaily   RepeatRule = "daily"
	RepeatWeekly  RepeatRule = "weekly"
	RepeatMonthly RepeatRule = "monthly"
)

// ParseRepeatRule accepts the four rule names case-insensitively; empty means none.
func ParseRepeatRule(s string) (RepeatRule, error) {
	switch RepeatRule(strings.ToLower(strings.TrimSpace(s))) {
	case "", RepeatNone:
		return RepeatNone, nil
	case RepeatDaily:
		return RepeatDaily, nil
	case RepeatWeekly:
		return RepeatWeekly, nil
	case RepeatMonthly:
		return RepeatMonthly, nil
	default:
		return "", errors.NewInvalidRequest("unknown repeat rule: " + s)
	}
}

// Event is a stored calendar entry. StartMinute/EndMinute are minutes since
// local midnight of Date.
type Event struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	Title       string     `json:"title"`
	ColorID     int        `json:"color_id"`
	Repeat      RepeatRule `json:"repeat"`
	Description string     `json:"description,omitempty"`
}

// Duration in minutes.
func (e Event) Duration() int {
	return e.EndMinute - e.StartMinute
}

// Draft is a not-yet-persisted event candidate produced by tap, long-press or
// the new-event button.
type Draft struct {
	Date        string     `json:"date"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	Title       string     `json:"title"`
	ColorID     int        `json:"color_id"`
	Repeat      RepeatRule `json:"repeat"`
	Description string     `json:"description,omitempty"`
}

// Instance is a single concrete day of an event after recurrence expansion.
// Event.Date holds the concrete date; SeriesDate the origin date.
type Instance struct {
	Event

	SeriesDate string `json:"series_date"`

	// InstanceKey uniquely identifies this occurrence ("<id>@<date>").
	InstanceKey string `json:"instance_key"`

	// ReadOnly marks generated occurrences; only the origin is editable.
	ReadOnly bool `json:"read_only"`
}

// InstanceKey builds the per-occurrence key.
func InstanceKey(id, date string) string {
	return id + "@" + date
}

// ValidSpan reports whether start/end lie within the day with at least
// minDuration minutes between them.
func ValidSpan(start, end, minDuration int) bool {
	return start >= 0 && end <= timemath.MinutesPerDay && end > start && end-start >= minDuration
}

// DateRange is an inclusive range of date keys.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Contains reports whether date lies within the range. Date keys compare
// lexically in chronological order.
func (r DateRange) Contains(date string) bool {
	return date >= r.From && date <= r.To
}

// Validate checks both bounds parse and are ordered.
func (r DateRange) Validate() error {
	from, err := timemath.ParseDate(r.From)
	if err != nil {
		return err
	}
	to, err := timemath.ParseDate(r.To)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return errors.NewInvalidRequest("date range ends before it starts")
	}
	return nil
}

// SingleDay is the range covering one date.
func SingleDay(date string) DateRange {
	return DateRange{From: date, To: date}
}
