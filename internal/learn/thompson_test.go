package learn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestSampler_GetReturnsUniformPrior(t *testing.T) {
	s := NewSampler()
	a := s.Get(model.ArmDog, "terrier")
	assert.Equal(t, 1.0, a.Alpha)
	assert.Equal(t, 1.0, a.Beta)
}

func TestSampler_RecordIncrementsAlphaOrBeta(t *testing.T) {
	s := NewSampler()
	a := s.Record(model.ArmDog, "terrier", true)
	assert.Equal(t, 2.0, a.Alpha)
	assert.Equal(t, 1.0, a.Beta)

	a = s.Record(model.ArmDog, "terrier", false)
	assert.Equal(t, 2.0, a.Alpha)
	assert.Equal(t, 2.0, a.Beta)
}

func TestSampler_SelectPrefersStrongerArm(t *testing.T) {
	s := NewSampler()
	for i := 0; i < 50; i++ {
		s.Record(model.ArmDog, "winner", true)
	}
	for i := 0; i < 50; i++ {
		s.Record(model.ArmDog, "loser", false)
	}

	wins := 0
	for i := 0; i < 20; i++ {
		if s.Select(model.ArmDog, []string{"winner", "loser"}) == "winner" {
			wins++
		}
	}
	assert.Greater(t, wins, 15)
}

func TestSampler_SelectEmptyCandidatesReturnsEmpty(t *testing.T) {
	s := NewSampler()
	assert.Equal(t, "", s.Select(model.ArmDog, nil))
}

func TestSampler_RestoreSeedsArms(t *testing.T) {
	s := NewSampler()
	s.Restore([]model.Arm{{ArmID: "dog:terrier", Kind: model.ArmDog, Label: "terrier", Alpha: 9, Beta: 1}})
	a := s.Get(model.ArmDog, "terrier")
	assert.Equal(t, 9.0, a.Alpha)
}

func TestSampleBeta_BoundedUnitInterval(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := sampleBeta(2, 5)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
