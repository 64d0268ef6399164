package simulate

import (
	"math/rand"

	"gopower/domain/trial"
)

// Generator produces one synthetic dataset per repetition: a balanced arm
// assignment followed by an independent outcome draw per record, conditioned
// only on the record's arm parameter. Fully deterministic for a fixed
// stream - the same seed yields a byte-identical dataset.
type Generator struct {
	design trial.Design
}

// NewGenerator validates the design once and reuses it for every
// repetition. The design is the only state and is never mutated, so one
// generator is safe to share across goroutines.
func NewGenerator(design trial.Design) (*Generator, error) {
	if err := design.Validate(); err != nil {
		return nil, err
	}
	return &Generator{design: design}, nil
}

// Design returns the immutable design this generator was built for.
func (g *Generator) Design() trial.Design {
	return g.design
}

// Generate draws one complete dataset from the supplied stream.
func (g *Generator) Generate(rng *rand.Rand) trial.Dataset {
	arms := BalancedArms(g.design.SampleSize, g.design.Arms, rng)

	records := make([]trial.Record, g.design.SampleSize)
	for i, arm := range arms {
		records[i] = trial.Record{
			Arm:     arm,
			Outcome: sampleBernoulli(g.design.Props[arm], rng),
		}
	}
	return trial.NewDataset(records)
}

// BalancedArms assigns n record slots to k arms so that arm sizes differ
// from n/k by at most one, then shuffles the order. Balancing by
// construction instead of independent draws keeps arm-size noise out of
// the power estimate's variance.
func BalancedArms(n, k int, rng *rand.Rand) []int {
	arms := make([]int, n)
	for i := range arms {
		arms[i] = i % k
	}
	rng.Shuffle(n, func(i, j int) {
		arms[i], arms[j] = arms[j], arms[i]
	})
	return arms
}

// sampleBernoulli draws a single binary outcome with success probability p.
func sampleBernoulli(p float64, rng *rand.Rand) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}
