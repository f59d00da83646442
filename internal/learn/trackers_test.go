package learn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAntifragilityTracker_LabelsRobustWithNoStress(t *testing.T) {
	tr := NewAntifragilityTracker(0.3)
	var label FragilityLabel
	for i := 0; i < 10; i++ {
		label = tr.Observe(0.5, false)
	}
	assert.Equal(t, Robust, label)
}

func TestAntifragilityTracker_LabelsFragileWhenStressVarianceSpikes(t *testing.T) {
	tr := NewAntifragilityTracker(0.5)
	for i := 0; i < 20; i++ {
		tr.Observe(0.5, false)
	}
	var label FragilityLabel
	rewards := []float64{0.9, -0.9, 0.9, -0.9, 0.9, -0.9}
	for _, r := range rewards {
		label = tr.Observe(r, true)
	}
	assert.Equal(t, Fragile, label)
}

func TestTemporalSpectrum_RestWindowsEmptyWithoutVariance(t *testing.T) {
	ts := NewTemporalSpectrum()
	for h := 0; h < 24; h++ {
		ts.Record(h, 0.5)
	}
	assert.Empty(t, ts.RestWindows())
}

func TestTemporalSpectrum_FlagsLowRewardHour(t *testing.T) {
	ts := NewTemporalSpectrum()
	for h := 0; h < 24; h++ {
		ts.Record(h, 0.8)
	}
	ts.Record(3, -0.9)
	assert.Contains(t, ts.RestWindows(), 3)
}

func TestMeasureSwitch_PicksBestCalibratedPosture(t *testing.T) {
	ms := NewMeasureSwitch()
	for i := 0; i < 30; i++ {
		ms.Record(0.9, true)
	}
	assert.Equal(t, PostureSeeking, ms.Best())
}

func TestNonCommutativeTracker_FlagsConsistentDelta(t *testing.T) {
	nc := NewNonCommutativeTracker()
	for i := 0; i < 5; i++ {
		nc.Observe("PHI", "VERIFY", 3.5)
	}
	flagged := nc.Flagged()
	assert.Len(t, flagged, 1)
	assert.Equal(t, "PHI", flagged[0].First)
	assert.InDelta(t, 3.5, flagged[0].Delta, 1e-9)
}

func TestNonCommutativeTracker_IgnoresSmallDelta(t *testing.T) {
	nc := NewNonCommutativeTracker()
	nc.Observe("PHI", "VERIFY", 0.5)
	assert.Empty(t, nc.Flagged())
}
