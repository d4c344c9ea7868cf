package timemath

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/errors"
)

func TestToMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:07", 547},
		{"9:30", 570},
		{"23:59", 1439},
		{"24:30", 1470},
	}
	for _, tt := range tests {
		got, err := ToMinutes(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestToMinutes_Malformed(t *testing.T) {
	for _, in := range []string{"", "0900", "ab:cd", "09:7", "09:60", "-1:00", "09:+5", "123:00", "09:00:00"} {
		_, err := ToMinutes(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, errors.ErrParse), in)
	}
}

func TestToTimeString(t *testing.T) {
	assert.Equal(t, "00:00", ToTimeString(0))
	assert.Equal(t, "09:05", ToTimeString(545))
	assert.Equal(t, "23:59", ToTimeString(1439))
	assert.Equal(t, "23:59", ToTimeString(5000))
	assert.Equal(t, "00:00", ToTimeString(-30))
}

func TestRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		got, err := ToMinutes(ToTimeString(m))
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestSnap_Bounds(t *testing.T) {
	for m := -100; m <= 1600; m++ {
		s := Snap(m, DefaultQuantum)
		require.Zero(t, s%DefaultQuantum, "m=%d", m)
		require.LessOrEqual(t, math.Abs(float64(s-m)), float64(DefaultQuantum)/2, "m=%d", m)
	}
}

func TestSnap_HalfUp(t *testing.T) {
	assert.Equal(t, 540, Snap(547, 15))
	assert.Equal(t, 555, Snap(548, 15))
	assert.Equal(t, 30, SnapFloat(22.5, 15))
	assert.Equal(t, 0, SnapFloat(-7.5, 15))
	assert.Equal(t, 60, Snap(55, 0), "non-positive quantum falls back to 15")
}

func TestPixelConversion(t *testing.T) {
	ppm := PxPerMinute(60)
	assert.InDelta(t, 1.0, ppm, 1e-9)
	assert.InDelta(t, 547.0, PixelsToMinutes(547, ppm), 1e-9)
	assert.InDelta(t, 1094.0, MinutesToPixels(547, PxPerMinute(120)), 1e-9)
	assert.Zero(t, PixelsToMinutes(100, 0))
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-28", DateKey(d))

	next, err := AddDays("2024-02-28", 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", next)

	_, err = ParseDate("28.02.2024")
	assert.True(t, errors.Is(err, errors.ErrParse))

	assert.Equal(t, 547, MinuteOfDay(time.Date(2024, 1, 1, 9, 7, 30, 0, time.Local)))
}
