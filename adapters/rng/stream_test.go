package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepetitionStreamIsDeterministic(t *testing.T) {
	adapter := NewDeterministic()

	a, err := adapter.RepetitionStream(context.Background(), 42, 3)
	require.NoError(t, err)
	b, err := adapter.RepetitionStream(context.Background(), 42, 3)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Int63(), b.Int63(), "same inputs must yield an identical stream")
	}
}

func TestRepetitionStreamsDiverge(t *testing.T) {
	adapter := NewDeterministic()

	a, err := adapter.RepetitionStream(context.Background(), 42, 0)
	require.NoError(t, err)
	b, err := adapter.RepetitionStream(context.Background(), 42, 1)
	require.NoError(t, err)

	assert.NotEqual(t, a.Int63(), b.Int63())
}

func TestRepetitionStreamRejectsNegativeIndex(t *testing.T) {
	_, err := NewDeterministic().RepetitionStream(context.Background(), 42, -1)
	require.Error(t, err)
}

func TestRepetitionStreamHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDeterministic().RepetitionStream(ctx, 42, 0)
	require.ErrorIs(t, err, context.Canceled)
}
