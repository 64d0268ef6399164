package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"gopower/domain/power"
	"gopower/domain/trial"
	"gopower/internal/simulate"
	"gopower/ports"
)

// SequentialRunner drives one simulated trial through an ordered sequence
// of interim looks. The trial is a small state machine: Running while looks
// remain, then exactly one terminal state. The load-bearing invariant is
// that no look is ever analyzed after a terminal transition - stopping
// early and then peeking at later data would wreck Type-I-error control,
// so the loop exits the moment the state turns terminal.
type SequentialRunner struct {
	generator *simulate.Generator
	analyzer  ports.TrialAnalyzer
	schedule  trial.LookSchedule
	targetArm int
}

// NewSequentialRunner validates the schedule shape against the generator's
// design before any trial runs.
func NewSequentialRunner(generator *simulate.Generator, analyzer ports.TrialAnalyzer, schedule trial.LookSchedule) (*SequentialRunner, error) {
	if err := schedule.Validate(generator.Design().SampleSize); err != nil {
		return nil, err
	}
	return &SequentialRunner{
		generator: generator,
		analyzer:  analyzer,
		schedule:  schedule,
		targetArm: 1,
	}, nil
}

// Schedule returns the schedule the runner applies.
func (sr *SequentialRunner) Schedule() trial.LookSchedule {
	return sr.schedule
}

// RunTrial simulates one full trial: generate the complete dataset once,
// then walk the looks over growing prefixes of it. The same participants
// accumulate across looks - later looks are supersets, not resamples.
func (sr *SequentialRunner) RunTrial(ctx context.Context, rng *rand.Rand) (trial.TrialOutcome, error) {
	dataset := sr.generator.Generate(rng)

	outcome := trial.TrialOutcome{State: trial.StateRunning}
	for j := 0; j < len(sr.schedule) && !outcome.State.Terminal(); j++ {
		look := sr.schedule[j]
		result, err := sr.analyzer.Analyze(ctx, dataset.Prefix(look.CumulativeN), sr.targetArm)
		if err != nil {
			return trial.TrialOutcome{}, fmt.Errorf("look %d: %w", j+1, err)
		}

		switch {
		case result.Significant(look.Threshold):
			outcome = trial.TrialOutcome{StopLook: j + 1, State: trial.StateStoppedSignificant, Result: result}
		case j == len(sr.schedule)-1:
			outcome = trial.TrialOutcome{StopLook: j + 1, State: trial.StateRanToFinal, Result: result}
		}
	}
	return outcome, nil
}

// SequentialAggregator estimates group-sequential power: the proportion of
// trials that ever cross their look's boundary, each trial judged at the
// threshold of the look where it stopped, plus the distribution of stopping
// points with per-group effect estimates.
type SequentialAggregator struct {
	runner *SequentialRunner
	rng    ports.RNGPort
}

// NewSequentialAggregator wires a runner to an RNG source.
func NewSequentialAggregator(runner *SequentialRunner, rng ports.RNGPort) *SequentialAggregator {
	return &SequentialAggregator{runner: runner, rng: rng}
}

// EstimatePower runs cfg.Reps independent sequential trials with derived
// seeds (baseSeed + index, same rule as the fixed-sample aggregator) and
// reduces them into overall power and the stop distribution. cfg.Alpha is
// ignored here - each trial is judged against its own look thresholds -
// but is carried into the summary for reporting.
func (sa *SequentialAggregator) EstimatePower(ctx context.Context, cfg RunConfig) (power.SequentialSummary, error) {
	if err := cfg.validate(); err != nil {
		return power.SequentialSummary{}, err
	}

	outcomes := make([]trial.TrialOutcome, cfg.Reps)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())

	var done atomic.Int64
	for i := 0; i < cfg.Reps; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			stream, err := sa.rng.RepetitionStream(gctx, cfg.BaseSeed, i)
			if err != nil {
				return err
			}
			outcome, err := sa.runner.RunTrial(gctx, stream)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			outcomes[i] = outcome

			if cfg.Progress != nil {
				cfg.Progress(int(done.Add(1)), cfg.Reps)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return power.SequentialSummary{}, err
	}
	if err := ctx.Err(); err != nil {
		return power.SequentialSummary{}, err
	}

	return sa.reduce(outcomes, cfg)
}

func (sa *SequentialAggregator) reduce(outcomes []trial.TrialOutcome, cfg RunConfig) (power.SequentialSummary, error) {
	significant := 0
	failures := 0
	for _, o := range outcomes {
		if o.Significant() {
			significant++
		}
		if o.Result.Failed {
			failures++
		}
	}

	ci, err := ClopperPearson(significant, len(outcomes), cfg.confLevel())
	if err != nil {
		return power.SequentialSummary{}, err
	}

	dist, err := sa.stopDistribution(outcomes, cfg.confLevel())
	if err != nil {
		return power.SequentialSummary{}, err
	}

	return power.SequentialSummary{
		Power: power.PowerSummary{
			Power:          float64(significant) / float64(len(outcomes)),
			CI:             ci,
			Significant:    significant,
			Repetitions:    len(outcomes),
			Alpha:          cfg.Alpha,
			FitFailures:    failures,
			FitFailureRate: float64(failures) / float64(len(outcomes)),
			AllFitsFailed:  failures == len(outcomes),
		},
		Stops: dist,
	}, nil
}

// stopDistribution groups trials by stopping point. Efficacy stops are one
// group per look, in look order; trials that examined every look without
// crossing form their own final category even when they stopped at the same
// cumulative n - a spending-family final threshold is not a plain
// fixed-sample test, so the two are not interchangeable.
func (sa *SequentialAggregator) stopDistribution(outcomes []trial.TrialOutcome, confLevel float64) (power.StopDistribution, error) {
	looks := len(sa.runner.Schedule())
	byStop := make(map[stopKey][]trial.TrialOutcome)
	for _, o := range outcomes {
		k := stopKey{look: o.StopLook, state: o.State}
		byStop[k] = append(byStop[k], o)
	}

	keys := make([]stopKey, 0, looks+1)
	for j := 1; j <= looks; j++ {
		keys = append(keys, stopKey{look: j, state: trial.StateStoppedSignificant})
	}
	keys = append(keys, stopKey{look: looks, state: trial.StateRanToFinal})

	dist := power.StopDistribution{Trials: len(outcomes)}
	for _, k := range keys {
		group := byStop[k]
		if len(group) == 0 {
			continue
		}
		ci, err := ClopperPearson(len(group), len(outcomes), confLevel)
		if err != nil {
			return power.StopDistribution{}, err
		}
		mean, sd := groupEstimateStats(group)
		dist.Groups = append(dist.Groups, power.StopGroup{
			Look:         k.look,
			State:        k.state,
			Trials:       len(group),
			Proportion:   float64(len(group)) / float64(len(outcomes)),
			CI:           ci,
			MeanEstimate: mean,
			SDEstimate:   sd,
		})
	}
	return dist, nil
}

type stopKey struct {
	look  int
	state trial.StopState
}

// groupEstimateStats summarizes the effect estimates of one stop group.
// Failed fits carry no usable estimate and are excluded from the moments,
// though they still count toward the group's proportion.
func groupEstimateStats(group []trial.TrialOutcome) (mean, sd float64) {
	estimates := make([]float64, 0, len(group))
	for _, o := range group {
		if !o.Result.Failed {
			estimates = append(estimates, o.Result.Estimate)
		}
	}
	if len(estimates) == 0 {
		return 0, 0
	}
	mean, _ = stats.Mean(estimates)
	if len(estimates) > 1 {
		sd, _ = stats.StandardDeviationSample(estimates)
	}
	return mean, sd
}
