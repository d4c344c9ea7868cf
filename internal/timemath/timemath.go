// Package timemath converts between clock strings, minute offsets and grid
// pixels, and snaps minutes to the grid quantum.
package timemath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"daycal/internal/errors"
)

const (
	// MinutesPerDay is the height of the grid in minutes.
	MinutesPerDay = 1440
	// DefaultQuantum is the snap granularity in minutes.
	DefaultQuantum = 15
	// DateLayout is the storage form of calendar dates.
	DateLayout = "2006-01-02"
)

// ToMinutes parses "HH:MM" into minutes since midnight. It does not clamp:
// "24:30" yields 1470 and callers decide what to do with it.
func ToMinutes(s string) (int, error) {
	raw := s
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, errors.NewParse(raw, "expected HH:MM")
	}
	h, err := parseDigits(hh)
	if err != nil {
		return 0, errors.NewParse(raw, "hours are not numeric")
	}
	m, err := parseDigits(mm)
	if err != nil {
		return 0, errors.NewParse(raw, "minutes are not numeric")
	}
	if len(mm) != 2 || m > 59 {
		return 0, errors.NewParse(raw, "minutes must be 00-59")
	}
	return h*60 + m, nil
}

func parseDigits(s string) (int, error) {
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("bad field %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bad field %q", s)
		}
	}
	return strconv.Atoi(s)
}

// ToTimeString formats minutes as zero-padded HH:MM, clamping to [0, 1439].
func ToTimeString(minutes int) string {
	minutes = Clamp(minutes, 0, MinutesPerDay-1)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Snap rounds minutes to the nearest multiple of quantum, halves rounding up.
func Snap(minutes, quantum int) int {
	return SnapFloat(float64(minutes), quantum)
}

// SnapFloat is Snap for fractional minutes, as produced by pixel conversion.
func SnapFloat(minutes float64, quantum int) int {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	q := float64(quantum)
	return int(math.Floor(minutes/q+0.5)) * quantum
}

// PxPerMinute derives the zoom factor from the height of one hour row.
func PxPerMinute(hourHeight float64) float64 {
	return hourHeight / 60
}

// PixelsToMinutes converts a vertical pixel distance on the grid to minutes.
func PixelsToMinutes(px, pxPerMinute float64) float64 {
	if pxPerMinute <= 0 {
		return 0
	}
	return px / pxPerMinute
}

// MinutesToPixels is the inverse of PixelsToMinutes.
func MinutesToPixels(minutes, pxPerMinute float64) float64 {
	return minutes * pxPerMinute
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DateKey formats the local calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD as midnight UTC. UTC keeps day arithmetic free
// of DST jumps; the value only ever stands for a wall-clock date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.NewParse(s, "expected YYYY-MM-DD")
	}
	return t, nil
}

// AddDays shifts a date key by n days.
func AddDays(key string, n int) (string, error) {
	t, err := ParseDate(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// MinuteOfDay returns minutes since local midnight for t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
