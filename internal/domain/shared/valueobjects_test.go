package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	instant := time.Date(2024, 3, 9, 21, 30, 0, 0, time.UTC)

	assert.Equal(t, Day("2024-03-09"), DayOf(instant, time.UTC))
	assert.Equal(t, Day("2024-03-10"), DayOf(instant, loc))
	assert.Equal(t, Day("2024-03-09"), DayOf(instant, nil))
}

func TestDay_Arithmetic(t *testing.T) {
	d := Day("2024-03-01")

	assert.Equal(t, Day("2024-02-29"), d.Yesterday())
	assert.Equal(t, Day("2024-03-29"), d.AddDays(28))
	assert.Equal(t, time.Friday, d.Weekday())
	assert.Equal(t, 28, d.DaysUntil(d.AddDays(28)))
	assert.Equal(t, -1, d.DaysUntil(d.Yesterday()))
	assert.True(t, d.Yesterday().Before(d))
	assert.Equal(t, Day(""), Day("").AddDays(3))
}

func TestDay_JSON(t *testing.T) {
	type wrapper struct {
		D Day `json:"d"`
	}

	data, err := json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":null}`, string(data))

	data, err = json.Marshal(wrapper{D: "2024-05-06"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-05-06"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"d":null}`), &w))
	assert.True(t, w.D.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-05-06"}`), &w))
	assert.Equal(t, Day("2024-05-06"), w.D)

	assert.Error(t, json.Unmarshal([]byte(`{"d":"06/05/2024"}`), &w))
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		points Points
		want   Level
	}{
		{0, 1},
		{100, 1},
		{999, 1},
		{1000, 2},
		{1999, 2},
		{2500, 3},
		{-5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.points), "points=%d", tt.points)
	}
}

func TestPoints_Progress(t *testing.T) {
	assert.Equal(t, 885, Points(115).ToNextLevel())
	assert.Equal(t, 11, Points(115).ProgressToNextLevel())
	assert.Equal(t, 1000, Points(1000).ToNextLevel())
	assert.Equal(t, Points(0), Points(10).Add(-50))
}

func TestNewSeverity(t *testing.T) {
	s, err := NewSeverity(7)
	require.NoError(t, err)
	assert.Equal(t, "severe", s.Label())
	assert.Equal(t, "7/10", s.String())

	_, err = NewSeverity(0)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	_, err = NewSeverity(11)
	assert.True(t, IsValidation(err))
}
