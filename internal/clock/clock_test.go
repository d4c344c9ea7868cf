package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	c := NewFixed(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestRefresher_InvalidSpec(t *testing.T) {
	_, err := NewRefresher("every minute please", func() {})
	assert.Error(t, err)
}

func TestRefresher_DefaultFiresEveryMinute(t *testing.T) {
	r, err := NewRefresher("", func() {})
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 9, 0, 30, 0, time.Local)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 1, 0, 0, time.Local), r.Next(from))
}

func TestRefresher_StartStop(t *testing.T) {
	r, err := NewRefresher("*/5 * * * *", func() {})
	require.NoError(t, err)
	r.Start()
	r.Stop()
}
