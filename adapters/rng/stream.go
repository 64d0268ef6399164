package rng

import (
	"context"
	"fmt"
	"math/rand"

	"gopower/ports"
)

// Deterministic implements ports.RNGPort with plain seeded math/rand
// streams. Every stream is independent of every other and fully determined
// by its inputs, which is what makes same-seed runs byte-identical.
type Deterministic struct{}

// NewDeterministic creates the standard RNG adapter.
func NewDeterministic() *Deterministic {
	return &Deterministic{}
}

// RepetitionStream derives the stream for repetition i as baseSeed + i.
// The rule is deliberately simple and documented: callers reproduce any
// single repetition without rerunning the whole aggregation.
func (d *Deterministic) RepetitionStream(ctx context.Context, baseSeed int64, repetition int) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if repetition < 0 {
		return nil, fmt.Errorf("repetition index must be non-negative, got %d", repetition)
	}
	return rand.New(rand.NewSource(baseSeed + int64(repetition))), nil
}

var _ ports.RNGPort = (*Deterministic)(nil)
