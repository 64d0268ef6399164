package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// RepetitionStream creates the RNG stream for one repetition of an
	// aggregation. The derivation rule is fixed (seed = baseSeed + index)
	// so a run is replayable repetition-by-repetition and no two
	// repetitions share a stream.
	RepetitionStream(ctx context.Context, baseSeed int64, repetition int) (*rand.Rand, error)
}
