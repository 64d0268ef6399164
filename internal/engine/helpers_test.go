package engine

import (
	"context"
	"math/rand"
	"sync"
)

// deterministicRNG is the test double for ports.RNGPort. It applies the
// same baseSeed+index rule as the production adapter and records every
// derived seed so tests can assert the derivation.
type deterministicRNG struct {
	mu    sync.Mutex
	seeds []int64
}

func newDeterministicRNG() *deterministicRNG {
	return &deterministicRNG{}
}

func (d *deterministicRNG) RepetitionStream(ctx context.Context, baseSeed int64, repetition int) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := baseSeed + int64(repetition)
	d.mu.Lock()
	d.seeds = append(d.seeds, seed)
	d.mu.Unlock()
	return rand.New(rand.NewSource(seed)), nil
}

func (d *deterministicRNG) recordedSeeds() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, len(d.seeds))
	copy(out, d.seeds)
	return out
}
