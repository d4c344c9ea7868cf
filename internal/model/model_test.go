package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepeatRule(t *testing.T) {
	for in, want := range map[string]RepeatRule{
		"":        RepeatNone,
		"none":    RepeatNone,
		"Daily":   RepeatDaily,
		" weekly": RepeatWeekly,
		"MONTHLY": RepeatMonthly,
	} {
		got, err := ParseRepeatRule(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRepeatRule("yearly")
	assert.Error(t, err)
}

func TestValidSpan(t *testing.T) {
	assert.True(t, ValidSpan(540, 600, 15))
	assert.True(t, ValidSpan(1425, 1440, 15))
	assert.False(t, ValidSpan(540, 550, 15), "below minimum duration")
	assert.False(t, ValidSpan(600, 540, 15), "inverted")
	assert.False(t, ValidSpan(-15, 30, 15))
	assert.False(t, ValidSpan(1430, 1455, 15))
}

func TestDateRange(t *testing.T) {
	r := DateRange{From: "2024-01-01", To: "2024-01-29"}
	require.NoError(t, r.Validate())
	assert.True(t, r.Contains("2024-01-01"))
	assert.True(t, r.Contains("2024-01-29"))
	assert.False(t, r.Contains("2024-01-30"))
	assert.False(t, r.Contains("2023-12-31"))

	assert.Error(t, DateRange{From: "2024-02-01", To: "2024-01-01"}.Validate())
	assert.Error(t, DateRange{From: "yesterday", To: "2024-01-01"}.Validate())
}

func TestColorByID(t *testing.T) {
	c, ok := ColorByID(6)
	assert.True(t, ok)
	assert.Equal(t, "Peacock", c.Name)

	c, ok = ColorByID(42)
	assert.False(t, ok)
	assert.Equal(t, DefaultColorID(), c.ID)
	assert.Len(t, Palette, 9)
}

func TestInstanceKey(t *testing.T) {
	assert.Equal(t, "01H@2024-01-08", InstanceKey("01H", "2024-01-08"))
}
