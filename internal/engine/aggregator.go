package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"gopower/domain/core"
	"gopower/domain/power"
	"gopower/domain/trial"
	"gopower/internal/simulate"
	"gopower/ports"
)

// RunConfig configures one aggregation run. Zero values for ConfLevel and
// Workers fall back to 0.95 and GOMAXPROCS.
type RunConfig struct {
	Reps      int
	Alpha     float64
	ConfLevel float64
	BaseSeed  int64
	Workers   int

	// Progress, when set, is called after each completed repetition with
	// (completed, total). Called from worker goroutines; must be cheap
	// and concurrency-safe.
	Progress func(done, total int)
}

func (cfg RunConfig) validate() error {
	if cfg.Reps <= 0 {
		return fmt.Errorf("%w: got %d", core.ErrNoRepetitions, cfg.Reps)
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return core.NewConfigurationError("alpha", fmt.Sprintf("%v outside (0,1)", cfg.Alpha))
	}
	if cfg.ConfLevel != 0 && (cfg.ConfLevel <= 0 || cfg.ConfLevel >= 1) {
		return core.NewConfigurationError("conf_level", fmt.Sprintf("%v outside (0,1)", cfg.ConfLevel))
	}
	return nil
}

func (cfg RunConfig) confLevel() float64 {
	if cfg.ConfLevel == 0 {
		return 0.95
	}
	return cfg.ConfLevel
}

func (cfg RunConfig) workers() int {
	if cfg.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return cfg.Workers
}

// PowerAggregator estimates fixed-sample power by fork-join Monte Carlo:
// independent generate-analyze repetitions, each on its own derived seed,
// reduced into a proportion-significant with an exact interval only after
// all repetitions complete. Repetitions are atomic - one either contributes
// a full FitResult or the whole run fails.
type PowerAggregator struct {
	generator *simulate.Generator
	analyzer  ports.TrialAnalyzer
	rng       ports.RNGPort
	targetArm int
}

// NewPowerAggregator wires a validated generator to an analyzer and an RNG
// source. The effect of interest is the treatment-arm indicator (arm 1).
func NewPowerAggregator(generator *simulate.Generator, analyzer ports.TrialAnalyzer, rng ports.RNGPort) *PowerAggregator {
	return &PowerAggregator{
		generator: generator,
		analyzer:  analyzer,
		rng:       rng,
		targetArm: 1,
	}
}

// EstimatePower runs cfg.Reps independent repetitions and reduces them to
// a PowerSummary. Cancelling ctx stops launching new repetitions, lets
// in-flight ones finish, and returns the context error - never a partial
// summary.
func (pa *PowerAggregator) EstimatePower(ctx context.Context, cfg RunConfig) (power.PowerSummary, error) {
	if err := cfg.validate(); err != nil {
		return power.PowerSummary{}, err
	}

	results, err := pa.runRepetitions(ctx, cfg)
	if err != nil {
		return power.PowerSummary{}, err
	}
	return reduceFixedSample(results, cfg)
}

// runRepetitions fans the generate-analyze pipeline out over a bounded
// worker group. Each repetition writes only its own slot, so the slice
// needs no locking.
func (pa *PowerAggregator) runRepetitions(ctx context.Context, cfg RunConfig) ([]trial.FitResult, error) {
	results := make([]trial.FitResult, cfg.Reps)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())

	var done atomic.Int64
	for i := 0; i < cfg.Reps; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			stream, err := pa.rng.RepetitionStream(gctx, cfg.BaseSeed, i)
			if err != nil {
				return err
			}
			dataset := pa.generator.Generate(stream)

			result, err := pa.analyzer.Analyze(gctx, dataset, pa.targetArm)
			if err != nil {
				return fmt.Errorf("repetition %d: %w", i, err)
			}
			results[i] = result

			if cfg.Progress != nil {
				cfg.Progress(int(done.Add(1)), cfg.Reps)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// reduceFixedSample counts significance at cfg.Alpha and attaches the exact
// interval plus fit-failure diagnostics.
func reduceFixedSample(results []trial.FitResult, cfg RunConfig) (power.PowerSummary, error) {
	significant := 0
	failures := 0
	for _, r := range results {
		if r.Failed {
			failures++
			continue
		}
		if r.Significant(cfg.Alpha) {
			significant++
		}
	}

	ci, err := ClopperPearson(significant, len(results), cfg.confLevel())
	if err != nil {
		return power.PowerSummary{}, err
	}

	return power.PowerSummary{
		Power:          float64(significant) / float64(len(results)),
		CI:             ci,
		Significant:    significant,
		Repetitions:    len(results),
		Alpha:          cfg.Alpha,
		FitFailures:    failures,
		FitFailureRate: float64(failures) / float64(len(results)),
		AllFitsFailed:  failures == len(results),
	}, nil
}
