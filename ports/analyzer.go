package ports

import (
	"context"

	"gopower/domain/trial"
)

// TrialAnalyzer fits the pre-declared analysis model to a dataset (or an
// interim prefix of one) and extracts the effect estimate, standard error
// and two-sided p-value for the target arm's coefficient.
//
// Implementations must be pure functions of their input data - no shared
// mutable state across calls - so the aggregators can fan repetitions out
// across goroutines. Non-convergence and separation are reported through
// FitResult.Failed, never as a degenerate p-value; the error return is
// reserved for malformed input (empty dataset, target arm out of range).
type TrialAnalyzer interface {
	Analyze(ctx context.Context, dataset trial.Dataset, targetArm int) (trial.FitResult, error)
}
