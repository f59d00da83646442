package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

// TestCleanupEScoreHistory_RetentionTiers seeds hourly snapshots spanning
// 40 days and checks the 24h/7d/365d retention schedule: raw resolution
// within 24h, one snapshot per calendar day between 24h and 7d, one
// snapshot per Sunday-starting week between 7d and 365d, nothing older
// than 365d.
func TestCleanupEScoreHistory_RetentionTiers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const userID = "user-1"
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	var seeded []time.Time
	for h := 0; h < 40*24; h++ {
		ts := now.Add(-time.Duration(h) * time.Hour)
		seeded = append(seeded, ts)
		_, err := db.CreateEScoreSnapshot(ctx, model.EScoreSnapshot{
			UserID:       userID,
			EScore:       50,
			TriggerEvent: "judgment",
			CreatedAt:    ts,
		})
		require.NoError(t, err)
	}

	require.NoError(t, db.CleanupEScoreHistory(ctx, now))

	remaining, err := db.FindEScoreHistory(ctx, userID, 10000)
	require.NoError(t, err)

	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)
	yearAgo := now.Add(-365 * 24 * time.Hour)

	for _, s := range remaining {
		assert.False(t, s.CreatedAt.Before(yearAgo), "no snapshot older than 365d should survive: %v", s.CreatedAt)
	}

	// Raw tier: every seeded snapshot within the last 24h survives untouched.
	rawExpected := 0
	for _, ts := range seeded {
		if !ts.Before(dayAgo) {
			rawExpected++
		}
	}
	rawActual := 0
	for _, s := range remaining {
		if !s.CreatedAt.Before(dayAgo) {
			rawActual++
		}
	}
	assert.Equal(t, rawExpected, rawActual, "raw tier (<24h) must keep every on-the-hour entry")

	// Daily tier: between 24h and 7d, exactly one surviving snapshot per
	// calendar day, and it must be the earliest (closest to midnight) of
	// that day's seeded snapshots.
	dailyByDay := make(map[string][]time.Time)
	for _, ts := range seeded {
		if ts.Before(dayAgo) && !ts.Before(weekAgo) {
			key := ts.Format("2006-01-02")
			dailyByDay[key] = append(dailyByDay[key], ts)
		}
	}
	survivingDaily := make(map[string]time.Time)
	for _, s := range remaining {
		if s.CreatedAt.Before(dayAgo) && !s.CreatedAt.Before(weekAgo) {
			key := s.CreatedAt.Format("2006-01-02")
			if _, exists := survivingDaily[key]; exists {
				t.Fatalf("more than one surviving snapshot for day %s", key)
			}
			survivingDaily[key] = s.CreatedAt
		}
	}
	assert.Equal(t, len(dailyByDay), len(survivingDaily), "expected one surviving snapshot per day in the 24h-7d window")
	for day, candidates := range dailyByDay {
		earliest := candidates[0]
		for _, c := range candidates {
			if c.Before(earliest) {
				earliest = c
			}
		}
		got, ok := survivingDaily[day]
		require.True(t, ok, "missing surviving snapshot for day %s", day)
		assert.True(t, got.Equal(earliest), "day %s: expected surviving snapshot %v (earliest), got %v", day, earliest, got)
	}

	// Weekly tier: between 7d and 365d, exactly one surviving snapshot per
	// Sunday-starting week.
	weekStart := func(ts time.Time) time.Time {
		offset := int(ts.Weekday())
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location()).AddDate(0, 0, -offset)
	}
	weeklyByWeek := make(map[string][]time.Time)
	for _, ts := range seeded {
		if ts.Before(weekAgo) && !ts.Before(yearAgo) {
			key := weekStart(ts).Format("2006-01-02")
			weeklyByWeek[key] = append(weeklyByWeek[key], ts)
		}
	}
	survivingWeekly := make(map[string]time.Time)
	for _, s := range remaining {
		if s.CreatedAt.Before(weekAgo) && !s.CreatedAt.Before(yearAgo) {
			key := weekStart(s.CreatedAt).Format("2006-01-02")
			if _, exists := survivingWeekly[key]; exists {
				t.Fatalf("more than one surviving snapshot for week of %s", key)
			}
			survivingWeekly[key] = s.CreatedAt
		}
	}
	assert.Equal(t, len(weeklyByWeek), len(survivingWeekly), "expected one surviving snapshot per Sunday-starting week in the 7d-365d window")
	for week, candidates := range weeklyByWeek {
		earliest := candidates[0]
		for _, c := range candidates {
			if c.Before(earliest) {
				earliest = c
			}
		}
		got, ok := survivingWeekly[week]
		require.True(t, ok, "missing surviving snapshot for week of %s", week)
		assert.True(t, got.Equal(earliest), "week of %s: expected surviving snapshot %v (earliest), got %v", week, earliest, got)
	}
}
