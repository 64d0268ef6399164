package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopower/adapters/rng"
	"gopower/adapters/stats/boundary"
	"gopower/adapters/stats/logit"
	"gopower/domain/core"
	"gopower/domain/trial"
	"gopower/internal"
	"gopower/internal/config"
	"gopower/ports"
)

func testDefaults() config.SimulationConfig {
	return config.SimulationConfig{
		Reps:      200,
		Alpha:     0.05,
		ConfLevel: 0.95,
		BaseSeed:  42,
		Workers:   0,
	}
}

func newTestService(analyzer ports.TrialAnalyzer, defaults config.SimulationConfig) *PowerService {
	designers := map[ports.SpendingFamily]ports.BoundaryDesigner{
		ports.SpendingOBrienFleming: boundary.NewOBrienFleming(),
		ports.SpendingPocock:        boundary.NewPocock(),
	}
	return NewPowerService(analyzer, rng.NewDeterministic(), designers, defaults, internal.NewLogger(internal.LogLevelError))
}

// constantAnalyzer reports a fixed p-value for every repetition.
type constantAnalyzer struct {
	mu     sync.Mutex
	calls  int
	pValue float64
}

func (c *constantAnalyzer) Analyze(ctx context.Context, dataset trial.Dataset, targetArm int) (trial.FitResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return trial.FitResult{Estimate: 0.4, StdErr: 0.2, PValue: c.pValue, SampleSize: dataset.Len()}, nil
}

func TestEstimatePowerAppliesDefaults(t *testing.T) {
	analyzer := &constantAnalyzer{pValue: 0.5}
	defaults := config.SimulationConfig{Reps: 7, Alpha: 0.05, ConfLevel: 0.9, BaseSeed: 5, Workers: 1}
	service := newTestService(analyzer, defaults)

	result, err := service.EstimatePower(context.Background(), PowerRequest{
		Props:      []float64{0.3, 0.4},
		SampleSize: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, result.Summary.Repetitions)
	assert.Equal(t, 7, analyzer.calls)
	assert.Equal(t, 0.9, result.Summary.CI.Level)
	assert.Equal(t, int64(5), result.Manifest.BaseSeed)
	assert.Equal(t, EngineVersion, result.Manifest.CodeVersion)
}

func TestEstimatePowerRejectsInvalidDesign(t *testing.T) {
	service := newTestService(&constantAnalyzer{pValue: 0.5}, testDefaults())

	_, err := service.EstimatePower(context.Background(), PowerRequest{
		Props:      []float64{0.3, 1.4},
		SampleSize: 100,
	})
	require.Error(t, err)
	assert.True(t, core.IsInvalidDesign(err))
}

func TestEstimateSequentialPowerUnknownFamily(t *testing.T) {
	service := newTestService(&constantAnalyzer{pValue: 0.5}, testDefaults())

	_, err := service.EstimateSequentialPower(context.Background(), SequentialRequest{
		Props:    []float64{0.3, 0.4},
		InterimN: []int{50, 100},
		Family:   ports.SpendingFamily("triangular"),
	})
	require.Error(t, err)
	assert.True(t, core.IsInvalidConfiguration(err))
}

func TestEstimateSequentialPowerAcceptsExplicitSchedule(t *testing.T) {
	service := newTestService(&constantAnalyzer{pValue: 0.5}, testDefaults())

	schedule := trial.LookSchedule{
		{CumulativeN: 60, Threshold: 0.005},
		{CumulativeN: 120, Threshold: 0.048},
	}
	result, err := service.EstimateSequentialPower(context.Background(), SequentialRequest{
		Props:    []float64{0.3, 0.4},
		Schedule: schedule,
		Reps:     20,
	})
	require.NoError(t, err)
	assert.Equal(t, schedule, result.Schedule)
	assert.Equal(t, 120, result.Manifest.Design.SampleSize)
}

func TestEstimatePowerDeterministicForFixedSeed(t *testing.T) {
	service := newTestService(logit.NewAnalyzer(), testDefaults())
	req := PowerRequest{Props: []float64{0.3, 0.4}, SampleSize: 200, Reps: 100, Seed: 9}

	a, err := service.EstimatePower(context.Background(), req)
	require.NoError(t, err)
	b, err := service.EstimatePower(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Summary, b.Summary)
	assert.Equal(t, a.Manifest.Fingerprint, b.Manifest.Fingerprint)
}

// Full pipeline: a large true effect must yield near-certain rejection,
// a null effect must reject at roughly the alpha rate.
func TestEstimatePowerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("simulation scenario is slow")
	}
	service := newTestService(logit.NewAnalyzer(), testDefaults())

	strong, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.2, 0.5}, SampleSize: 300, Reps: 200, Seed: 11,
	})
	require.NoError(t, err)
	assert.Greater(t, strong.Summary.Power, 0.9)
	assert.Zero(t, strong.Summary.FitFailures)

	null, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.4, 0.4}, SampleSize: 300, Reps: 200, Seed: 11,
	})
	require.NoError(t, err)
	assert.Less(t, null.Summary.Power, 0.15)
}

// Holding props fixed, more sample cannot buy less power.
func TestPowerMonotonicInSampleSize(t *testing.T) {
	if testing.Short() {
		t.Skip("simulation scenario is slow")
	}
	service := newTestService(logit.NewAnalyzer(), testDefaults())

	small, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.3, 0.4}, SampleSize: 200, Reps: 400, Seed: 17,
	})
	require.NoError(t, err)
	large, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.3, 0.4}, SampleSize: 1000, Reps: 400, Seed: 17,
	})
	require.NoError(t, err)

	assert.Greater(t, large.Summary.Power, small.Summary.Power)
}

// Reference scenario: props (.4,.3) at N=1000 sits around 91-95% power;
// the mirrored (.3,.4) sequential design with O'Brien-Fleming looks at
// 500/750/1000 spends alpha early and lands slightly below it.
func TestSequentialPowerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("simulation scenario is slow")
	}
	service := newTestService(logit.NewAnalyzer(), testDefaults())

	fixed, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.4, 0.3}, SampleSize: 1000, Reps: 4000, Seed: 23,
	})
	require.NoError(t, err)
	assert.Greater(t, fixed.Summary.Power, 0.85)
	assert.Less(t, fixed.Summary.Power, 0.97)

	sequential, err := service.EstimateSequentialPower(context.Background(), SequentialRequest{
		Props:    []float64{0.4, 0.3},
		InterimN: []int{500, 750, 1000},
		Family:   ports.SpendingOBrienFleming,
		Reps:     4000,
		Seed:     23,
	})
	require.NoError(t, err)

	assert.Less(t, sequential.Summary.Power.Power, fixed.Summary.Power)
	assert.InDelta(t, 1.0, sequential.Summary.Stops.TotalProportion(), 1e-9)

	// early stoppers carry inflated effect estimates; compare the first
	// and last populated stop groups when both have enough trials
	groups := sequential.Summary.Stops.Groups
	require.NotEmpty(t, groups)
	first, last := groups[0], groups[len(groups)-1]
	if first.State == trial.StateStoppedSignificant && first.Trials >= 20 && last.Trials >= 20 {
		assert.Greater(t, abs(first.MeanEstimate), abs(last.MeanEstimate))
	}
}

// A schedule with a very small first look produces prefixes that can miss
// an arm entirely or hold one record per arm. Those looks must resolve as
// tracked fit failures inside their own trial; the aggregation as a whole
// completes.
func TestSequentialTinyFirstLookCompletes(t *testing.T) {
	service := newTestService(logit.NewAnalyzer(), testDefaults())

	result, err := service.EstimateSequentialPower(context.Background(), SequentialRequest{
		Props: []float64{0.3, 0.4},
		Schedule: trial.LookSchedule{
			{CumulativeN: 2, Threshold: 0.001},
			{CumulativeN: 40, Threshold: 0.05},
		},
		Reps: 50,
		Seed: 31,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Summary.Power.Repetitions)
	assert.InDelta(t, 1.0, result.Summary.Stops.TotalProportion(), 1e-9)
}

// Reference underpowered scenario: rare outcomes at a halved rate stay far
// below the conventional 80% target even at N=2000.
func TestUnderpoweredScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("simulation scenario is slow")
	}
	service := newTestService(logit.NewAnalyzer(), testDefaults())

	result, err := service.EstimatePower(context.Background(), PowerRequest{
		Props: []float64{0.035, 0.0175}, SampleSize: 2000, Reps: 500, Seed: 29,
	})
	require.NoError(t, err)
	assert.Less(t, result.Summary.Power, 0.6)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
