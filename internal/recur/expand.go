package recur

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/timemath"
)

const (
	defaultDailyHorizon           = 7
	defaultWeeklyCount            = 4
	defaultMaxOccurrencesPerEvent = 366
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Range is the inclusive window of dates to materialize.
	Range model.DateRange

	// DailyHorizon is how many consecutive days a daily event covers,
	// counted from its origin date. Zero means one week.
	DailyHorizon int

	// WeeklyCount is how many weekly occurrences are generated. Zero means 4.
	WeeklyCount int

	// MaxOccurrencesPerEvent caps a single event's expansion.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded instances and any truncation.
type ExpandResult struct {
	Instances []model.Instance
	// TruncatedIDs lists events that hit MaxOccurrencesPerEvent.
	TruncatedIDs []string
}

// Expand turns stored events into the concrete per-day instances that fall
// into cfg.Range:
//
//   - none:    the event itself, if its date is in range
//   - daily:   one instance per day for DailyHorizon days from the origin
//   - weekly:  WeeklyCount instances seven days apart
//   - monthly: the event itself; monthly series are not materialized
//
// Generated instances other than the origin are read-only. The input slice is
// not modified and the output order depends only on the input.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if err := cfg.Range.Validate(); err != nil {
		return result, err
	}
	if cfg.DailyHorizon <= 0 {
		cfg.DailyHorizon = defaultDailyHorizon
	}
	if cfg.WeeklyCount <= 0 {
		cfg.WeeklyCount = defaultWeeklyCount
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	rangeStart, _ := timemath.ParseDate(cfg.Range.From)
	rangeEnd, _ := timemath.ParseDate(cfg.Range.To)

	out := make([]model.Instance, 0, len(events))
	for _, ev := range events {
		instances, hitCap := expandEvent(ev, rangeStart, rangeEnd, cfg)
		if hitCap {
			result.TruncatedIDs = append(result.TruncatedIDs, ev.ID)
			appLog.Warn("expand: truncated occurrences due to cap",
				"id", ev.ID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		out = append(out, instances...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartMinute != b.StartMinute {
			return a.StartMinute < b.StartMinute
		}
		if a.EndMinute != b.EndMinute {
			return a.EndMinute < b.EndMinute
		}
		return a.ID < b.ID
	})

	result.Instances = out
	return result, nil
}

func expandEvent(ev model.Event, rangeStart, rangeEnd time.Time, cfg ExpandConfig) ([]model.Instance, bool) {
	origin, err := timemath.ParseDate(ev.Date)
	if err != nil {
		appLog.Warn("expand: skipping event with bad date", "id", ev.ID, "date", ev.Date)
		return nil, false
	}

	switch ev.Repeat {
	case model.RepeatDaily:
		return expandRule(ev, origin, fmt.Sprintf("FREQ=DAILY;COUNT=%d", cfg.DailyHorizon), rangeStart, rangeEnd, cfg)
	case model.RepeatWeekly:
		return expandRule(ev, origin, fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", cfg.WeeklyCount), rangeStart, rangeEnd, cfg)
	default:
		// none, monthly and unknown rules pass through as a single instance.
		if origin.Before(rangeStart) || origin.After(rangeEnd) {
			return nil, false
		}
		return []model.Instance{makeInstance(ev, ev.Date)}, false
	}
}

func expandRule(ev model.Event, origin time.Time, rule string, rangeStart, rangeEnd time.Time, cfg ExpandConfig) ([]model.Instance, bool) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		appLog.Error("expand: failed to build rule", err, "id", ev.ID, "rrule", rule)
		return nil, false
	}
	r.DTStart(origin)

	occTimes := r.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Instance, 0, len(occTimes))
	for _, occ := range occTimes {
		out = append(out, makeInstance(ev, timemath.DateKey(occ)))
	}
	return out, hitCap
}

// makeInstance projects ev onto date. The copy shares nothing mutable with ev.
func makeInstance(ev model.Event, date string) model.Instance {
	inst := model.Instance{
		Event:       ev,
		SeriesDate:  ev.Date,
		InstanceKey: model.InstanceKey(ev.ID, date),
		ReadOnly:    date != ev.Date,
	}
	inst.Event.Date = date
	return inst
}

// ForDay filters expanded instances down to one date.
func ForDay(instances []model.Instance, date string) []model.Instance {
	out := make([]model.Instance, 0)
	for _, inst := range instances {
		if inst.Date == date {
			out = append(out, inst)
		}
	}
	return out
}

// Lookback is how many days before a range start a series origin can lie and
// still produce instances inside the range.
func Lookback(cfg ExpandConfig) int {
	daily := cfg.DailyHorizon
	if daily <= 0 {
		daily = defaultDailyHorizon
	}
	weekly := cfg.WeeklyCount
	if weekly <= 0 {
		weekly = defaultWeeklyCount
	}
	weeklySpan := 7 * (weekly - 1)
	if weeklySpan > daily-1 {
		return weeklySpan
	}
	return daily - 1
}
