package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestCreateAndFindPsychologyHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		s := model.PsychologySnapshot{
			UserID:      "u1",
			Energy:      0.6,
			Focus:       0.7,
			Creativity:  0.5,
			Frustration: 0.2,
			WorkDone:    float64(i),
			ErrorCount:  i,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		s.DeriveComposites()
		_, err := db.CreatePsychologySnapshot(ctx, s)
		require.NoError(t, err)
	}

	history, err := db.FindPsychologyHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Newest first.
	assert.Equal(t, 2, history[0].ErrorCount)
	assert.InDelta(t, history[0].Frustration*0.7+(1-history[0].Energy)*0.3, history[0].Burnout, 0.0001)
}

func TestFindPsychologyHistory_EmptyForUnknownUser(t *testing.T) {
	db := newTestDB(t)
	history, err := db.FindPsychologyHistory(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
