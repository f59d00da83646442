package learn

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/ashita-ai/akashi/internal/model"
)

// Sampler is the Thompson Sampler over named arms (patterns, heuristics,
// dog choices). Each arm's Beta(alpha, beta) posterior starts at the
// uniform prior (1,1); a per-key lock matches QTable's update discipline
// so distinct arms update in parallel.
type Sampler struct {
	mu   sync.RWMutex
	arms map[string]*armCell
}

type armCell struct {
	mu sync.Mutex
	model.Arm
}

// NewSampler returns an empty in-memory sampler. Load persisted arms with
// Restore before serving traffic at WARM boot.
func NewSampler() *Sampler {
	return &Sampler{arms: make(map[string]*armCell)}
}

// Restore seeds the sampler from persisted arms.
func (s *Sampler) Restore(arms []model.Arm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range arms {
		s.arms[a.ArmID] = &armCell{Arm: a}
	}
}

func (s *Sampler) cell(kind model.ArmKind, label string) *armCell {
	armID := string(kind) + ":" + label
	s.mu.RLock()
	c, ok := s.arms[armID]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.arms[armID]; ok {
		return c
	}
	c = &armCell{Arm: model.NewArm(kind, label)}
	s.arms[armID] = c
	return c
}

// Get returns the current posterior for an arm, creating it with the
// uniform prior if it does not yet exist.
func (s *Sampler) Get(kind model.ArmKind, label string) model.Arm {
	c := s.cell(kind, label)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Arm
}

// Record applies a Bernoulli outcome to an arm's posterior: alpha += 1 on
// success, beta += 1 on failure. Returns the updated arm for the caller
// to persist.
func (s *Sampler) Record(kind model.ArmKind, label string, success bool) model.Arm {
	c := s.cell(kind, label)
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.Alpha++
	} else {
		c.Beta++
	}
	return c.Arm
}

// Select draws one sample per candidate arm and returns the label with
// the highest draw (argmax), implementing Thompson Sampling's
// exploration/exploitation balance. Returns "" if candidates is empty.
func (s *Sampler) Select(kind model.ArmKind, candidates []string) string {
	best := ""
	bestDraw := -1.0
	for _, label := range candidates {
		a := s.Get(kind, label)
		draw := sampleBeta(a.Alpha, a.Beta)
		if draw > bestDraw {
			bestDraw = draw
			best = label
		}
	}
	return best
}

// sampleBeta draws one sample from Beta(alpha, beta) via the standard
// ratio-of-Gammas construction: X~Gamma(alpha), Y~Gamma(beta), X/(X+Y)~Beta(alpha,beta).
func sampleBeta(alpha, beta float64) float64 {
	x := sampleGamma(alpha)
	y := sampleGamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws one sample from Gamma(shape, 1) using the
// Marsaglia-Tsang method (valid for shape >= 1; boosted via the standard
// shape+1 transform for shape < 1).
func sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := rand.Float64()
		return sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rand.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rand.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
