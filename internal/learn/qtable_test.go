package learn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestQTable_UpdateConvergesTowardReward(t *testing.T) {
	q := NewQTable()
	var v float64
	for i := 0; i < 50; i++ {
		entry := q.Update("debug|CODE|terrier", "terrier", 1.0, 0.5, 0)
		v = entry.Value
	}
	assert.InDelta(t, 1.0, v, 0.01)
}

func TestQTable_ZeroValueForUnknownCell(t *testing.T) {
	q := NewQTable()
	assert.Equal(t, 0.0, q.Value("debug|CODE|terrier", "terrier"))
}

func TestQTable_MaxValuePicksBestAction(t *testing.T) {
	q := NewQTable()
	q.Update("s", "a", 0.2, 1.0, 0)
	q.Update("s", "b", 0.8, 1.0, 0)
	assert.InDelta(t, 0.8, q.MaxValue("s", []string{"a", "b"}), 1e-9)
}

func TestQTable_MaxValueEmptyActionsIsZero(t *testing.T) {
	q := NewQTable()
	assert.Equal(t, 0.0, q.MaxValue("s", nil))
}

func TestQTable_RestoreSeedsEntries(t *testing.T) {
	q := NewQTable()
	q.Restore([]model.QTableEntry{{StateKey: "s", Action: "a", Value: 0.42, Episodes: 3}})
	assert.Equal(t, 0.42, q.Value("s", "a"))
}

func TestEpsilon_DecaysAndFloors(t *testing.T) {
	assert.InDelta(t, epsilonStart, Epsilon(0), 1e-9)
	assert.Less(t, Epsilon(100), Epsilon(1))
	assert.GreaterOrEqual(t, Epsilon(1_000_000), epsilonFloor)
}
