package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthloop/companion/config"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "healthloop.db"))
	t.Setenv("GUIDANCE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_PatientJourney(t *testing.T) {
	setupEnv(t)
	today := strings.ToLower(time.Now().UTC().Weekday().String())

	_, err := run(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "healthloop onboard")

	out, err := run(t, "onboard",
		"--name", "Dana",
		"--medication", "Semaglutide",
		"--dose", "0.5mg",
		"--injection-day", today,
		"--start-weight", "200",
		"--target-weight", "170",
		"--motivation", "Keep up with my kids",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "welcome Dana: 100 points")

	out, err = run(t, "task", "complete", "injection")
	require.NoError(t, err)
	assert.Contains(t, out, "streak 1")

	_, err = run(t, "task", "complete", "stretching")
	assert.Error(t, err)

	out, err = run(t, "weight", "log", "195")
	require.NoError(t, err)
	assert.Contains(t, out, "lost 5.0")

	out, err = run(t, "side-effect", "log", "Nausea", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Nausea (moderate)")
	assert.Contains(t, out, "consult your healthcare provider")

	out, err = run(t, "side-effect", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "guidance ready")

	out, err = run(t, "status", "--json")
	require.NoError(t, err)
	var dash struct {
		Points      int `json:"points"`
		DailyStreak int `json:"daily_streak"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &dash))
	assert.Greater(t, dash.Points, 100)
	assert.Equal(t, 1, dash.DailyStreak)

	out, err = run(t, "achievements")
	require.NoError(t, err)
	assert.Contains(t, out, "[x]")
}

func TestCLI_Reset(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "onboard",
		"--name", "Dana", "--medication", "Semaglutide", "--dose", "0.5mg",
		"--injection-day", "1", "--start-weight", "200", "--target-weight", "170",
		"--motivation", "health",
	)
	require.NoError(t, err)

	_, err = run(t, "reset")
	require.Error(t, err)

	out, err := run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run(t, "status")
	assert.Error(t, err)
}

func TestCLI_OnboardValidation(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "onboard",
		"--name", "Dana", "--medication", "Semaglutide", "--dose", "0.5mg",
		"--injection-day", "funday", "--start-weight", "200", "--target-weight", "170",
		"--motivation", "health",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid injection day")

	_, err = run(t, "onboard", "--name", "Dana")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"sunday", 0, true},
		{"Monday", 1, true},
		{"wed", 3, true},
		{"6", 6, true},
		{"9", 9, true}, // range is checked by profile validation
		{"someday", 0, false},
	}
	for _, tt := range tests {
		got, err := parseWeekday(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestApp_HealthReport(t *testing.T) {
	setupEnv(t)
	t.Setenv("GUIDANCE_API_KEY", "test-key")
	t.Setenv("FEATURE_NOTIFY_LEVEL_UP", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, setupLogger(cfg))
	require.NoError(t, err)
	defer a.Close()

	status := a.health.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.Equal(t, "ok", status.Status)
	assert.Contains(t, status.Checks, "storage")
	require.Contains(t, status.Checks, "guidance")
	assert.False(t, status.Checks["guidance"].Critical)
	assert.Contains(t, status.Stats, "event_bus")

	features, ok := status.Stats["features"].([]config.Feature)
	require.True(t, ok)
	for _, f := range features {
		if f.Name == config.FeatureNotifyLevelUp {
			assert.False(t, f.Enabled)
		}
	}
}
