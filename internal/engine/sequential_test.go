package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopower/domain/core"
	"gopower/domain/trial"
)

// lookScriptAnalyzer returns a scripted result per prefix size and records
// the exact order of prefix sizes analyzed. That record is how the
// never-look-past-a-stop invariant is verified.
type lookScriptAnalyzer struct {
	mu     sync.Mutex
	calls  []int
	pByN   map[int]float64
	estByN map[int]float64
}

func (a *lookScriptAnalyzer) Analyze(ctx context.Context, dataset trial.Dataset, targetArm int) (trial.FitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := dataset.Len()
	a.calls = append(a.calls, n)
	return trial.FitResult{
		Estimate:   a.estByN[n],
		StdErr:     0.1,
		PValue:     a.pByN[n],
		SampleSize: n,
	}, nil
}

var testSchedule = trial.LookSchedule{
	{CumulativeN: 50, Threshold: 0.01},
	{CumulativeN: 75, Threshold: 0.02},
	{CumulativeN: 100, Threshold: 0.045},
}

func newRunner(t *testing.T, analyzer *lookScriptAnalyzer) *SequentialRunner {
	t.Helper()
	runner, err := NewSequentialRunner(newGenerator(t, 100), analyzer, testSchedule)
	require.NoError(t, err)
	return runner
}

func TestSequentialRunnerStopsAtCrossedBoundaryAndNeverLooksPast(t *testing.T) {
	analyzer := &lookScriptAnalyzer{
		pByN: map[int]float64{50: 0.2, 75: 0.001, 100: 0.0},
	}
	runner := newRunner(t, analyzer)

	outcome, err := runner.RunTrial(context.Background(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.StopLook)
	assert.Equal(t, trial.StateStoppedSignificant, outcome.State)
	assert.Equal(t, 0.001, outcome.Result.PValue)
	assert.Equal(t, 75, outcome.Result.SampleSize, "terminal result must come from the stopping look's prefix")

	// the final look would have been significant too; it must never have
	// been computed once the trial stopped
	assert.Equal(t, []int{50, 75}, analyzer.calls)
}

func TestSequentialRunnerStopsAtFirstLook(t *testing.T) {
	analyzer := &lookScriptAnalyzer{
		pByN:   map[int]float64{50: 0.0001, 75: 0.5, 100: 0.5},
		estByN: map[int]float64{50: 1.8},
	}
	runner := newRunner(t, analyzer)

	outcome, err := runner.RunTrial(context.Background(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.StopLook)
	assert.True(t, outcome.Significant())
	assert.Equal(t, 1.8, outcome.Result.Estimate)
	assert.Equal(t, []int{50}, analyzer.calls)
}

func TestSequentialRunnerRunsToFinalWithoutCrossing(t *testing.T) {
	analyzer := &lookScriptAnalyzer{
		pByN: map[int]float64{50: 0.3, 75: 0.2, 100: 0.1},
	}
	runner := newRunner(t, analyzer)

	outcome, err := runner.RunTrial(context.Background(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.StopLook)
	assert.Equal(t, trial.StateRanToFinal, outcome.State)
	assert.False(t, outcome.Significant())
	assert.Equal(t, []int{50, 75, 100}, analyzer.calls, "every look examined exactly once, in order")
}

func TestNewSequentialRunnerValidatesSchedule(t *testing.T) {
	analyzer := &lookScriptAnalyzer{pByN: map[int]float64{}}
	gen := newGenerator(t, 100)

	cases := []struct {
		name     string
		schedule trial.LookSchedule
	}{
		{"empty", trial.LookSchedule{}},
		{"non-monotonic", trial.LookSchedule{
			{CumulativeN: 75, Threshold: 0.01},
			{CumulativeN: 50, Threshold: 0.02},
			{CumulativeN: 100, Threshold: 0.05},
		}},
		{"final look not at sample size", trial.LookSchedule{
			{CumulativeN: 50, Threshold: 0.01},
			{CumulativeN: 90, Threshold: 0.04},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSequentialRunner(gen, analyzer, tc.schedule)
			require.Error(t, err)
			assert.True(t, core.IsInvalidConfiguration(err))
		})
	}
}

// alternatingAnalyzer makes every odd trial stop significant at the first
// look with a large estimate and every even trial run to the final look
// with a small one. Trial boundaries are detected by the first-look prefix
// size, which is why these tests run with a single worker.
type alternatingAnalyzer struct {
	mu    sync.Mutex
	trial int
}

func (a *alternatingAnalyzer) Analyze(ctx context.Context, dataset trial.Dataset, targetArm int) (trial.FitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if dataset.Len() == 50 {
		a.trial++
	}
	if a.trial%2 == 1 && dataset.Len() == 50 {
		return trial.FitResult{Estimate: 2.0, StdErr: 0.1, PValue: 0.0001, SampleSize: 50}, nil
	}
	return trial.FitResult{Estimate: 1.0, StdErr: 0.1, PValue: 0.9, SampleSize: dataset.Len()}, nil
}

func TestSequentialAggregatorPowerAndStopDistribution(t *testing.T) {
	runner, err := NewSequentialRunner(newGenerator(t, 100), &alternatingAnalyzer{}, testSchedule)
	require.NoError(t, err)
	aggregator := NewSequentialAggregator(runner, newDeterministicRNG())

	summary, err := aggregator.EstimatePower(context.Background(), RunConfig{
		Reps:    10,
		Alpha:   0.05,
		Workers: 1, // keep trial order deterministic for the alternating script
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Power.Significant)
	assert.InDelta(t, 0.5, summary.Power.Power, 1e-12)
	assert.True(t, summary.Power.CI.Contains(0.5))

	require.Len(t, summary.Stops.Groups, 2)
	first, last := summary.Stops.Groups[0], summary.Stops.Groups[1]

	assert.Equal(t, 1, first.Look)
	assert.Equal(t, trial.StateStoppedSignificant, first.State)
	assert.InDelta(t, 0.5, first.Proportion, 1e-12)
	assert.InDelta(t, 2.0, first.MeanEstimate, 1e-12)

	assert.Equal(t, 3, last.Look)
	assert.Equal(t, trial.StateRanToFinal, last.State)
	assert.InDelta(t, 0.5, last.Proportion, 1e-12)
	assert.InDelta(t, 1.0, last.MeanEstimate, 1e-12)

	// stop categories partition the trials
	assert.InDelta(t, 1.0, summary.Stops.TotalProportion(), 1e-9)

	// scripted early-stopping inflation: earliest stoppers carry the
	// larger mean estimate
	assert.Greater(t, first.MeanEstimate, last.MeanEstimate)
}

func TestSequentialAggregatorRejectsZeroReps(t *testing.T) {
	runner, err := NewSequentialRunner(newGenerator(t, 100), &alternatingAnalyzer{}, testSchedule)
	require.NoError(t, err)
	aggregator := NewSequentialAggregator(runner, newDeterministicRNG())

	_, err = aggregator.EstimatePower(context.Background(), RunConfig{Reps: 0, Alpha: 0.05})
	require.Error(t, err)
	assert.True(t, core.IsInvalidConfiguration(err))
}

func TestSequentialAggregatorCancellation(t *testing.T) {
	runner, err := NewSequentialRunner(newGenerator(t, 100), &alternatingAnalyzer{}, testSchedule)
	require.NoError(t, err)
	aggregator := NewSequentialAggregator(runner, newDeterministicRNG())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = aggregator.EstimatePower(ctx, RunConfig{Reps: 100, Alpha: 0.05})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
