package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	c := NewFixedClock(start)

	assert.Equal(t, start, c.Now())
	c.Advance(time.Hour)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC), c.Now())
	assert.Equal(t, time.UTC, c.Location())
}

func TestSystemClock(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	c := NewSystemClock(loc)

	assert.Equal(t, loc, c.Location())
	assert.Equal(t, loc, c.Now().Location())
	assert.Equal(t, time.Local, NewSystemClock(nil).Location())
}
