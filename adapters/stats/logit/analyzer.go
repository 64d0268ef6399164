package logit

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gopower/domain/trial"
)

// Analyzer fits a logistic regression of outcome on arm indicators and
// reports the Wald estimate, standard error and two-sided p-value for one
// arm's coefficient. It is stateless, so one instance serves concurrent
// repetitions.
//
// Separation (an arm with all successes or all failures) and
// non-convergence are reported as tracked FitResult failures, never as a
// degenerate p-value.
type Analyzer struct {
	maxIterations int
	tolerance     float64
}

// NewAnalyzer creates the standard analyzer. 25 Newton steps at 1e-8
// tolerance converge for any dataset that is not separated.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		maxIterations: 25,
		tolerance:     1e-8,
	}
}

// Analyze fits outcome ~ intercept + arm indicators by iteratively
// reweighted least squares and extracts the targetArm coefficient. Arm 0
// is the reference level, so targetArm must be at least 1.
func (a *Analyzer) Analyze(ctx context.Context, dataset trial.Dataset, targetArm int) (trial.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return trial.FitResult{}, err
	}
	n := dataset.Len()
	if n == 0 {
		return trial.FitResult{}, fmt.Errorf("cannot analyze an empty dataset")
	}

	if targetArm < 1 {
		return trial.FitResult{}, fmt.Errorf("target arm %d is not a non-reference arm", targetArm)
	}

	// A short interim prefix can exclude an arm entirely, the target
	// included. That is a property of the data, not of the caller's
	// input, so it falls through to the tracked-failure check below.
	arms := targetArm + 1
	for i := 0; i < n; i++ {
		if arm := dataset.At(i).Arm; arm+1 > arms {
			arms = arm + 1
		}
	}

	// A degenerate arm makes the likelihood unbounded; report it before
	// the iteration walks the coefficient off to infinity.
	for arm := 0; arm < arms; arm++ {
		mean, size := dataset.ArmMean(arm)
		if size == 0 {
			return trial.NewFitFailure(fmt.Sprintf("arm %d has no records in this prefix", arm), n), nil
		}
		if mean == 0 || mean == 1 {
			return trial.NewFitFailure(fmt.Sprintf("separation: arm %d outcomes are all %v", arm, mean), n), nil
		}
	}

	beta, covariance, converged := a.fit(dataset, n, arms)
	if !converged {
		return trial.NewFitFailure(fmt.Sprintf("no convergence after %d iterations", a.maxIterations), n), nil
	}

	estimate := beta[targetArm]
	variance := covariance.At(targetArm, targetArm)
	if variance <= 0 || math.IsNaN(variance) {
		return trial.NewFitFailure("non-positive coefficient variance", n), nil
	}
	stdErr := math.Sqrt(variance)

	z := estimate / stdErr
	pValue := 2 * distuv.UnitNormal.Survival(math.Abs(z))

	return trial.FitResult{
		Estimate:   estimate,
		StdErr:     stdErr,
		PValue:     pValue,
		SampleSize: n,
	}, nil
}

// fit runs Newton-Raphson on the log-likelihood (equivalently IRLS). The
// design matrix is intercept + one indicator per non-reference arm, so the
// parameter count equals the arm count.
func (a *Analyzer) fit(dataset trial.Dataset, n, arms int) (beta []float64, covariance *mat.SymDense, converged bool) {
	p := arms
	beta = make([]float64, p)
	features := make([]float64, p)

	var chol mat.Cholesky
	for iter := 0; iter < a.maxIterations; iter++ {
		score := mat.NewVecDense(p, nil)
		info := mat.NewSymDense(p, nil)

		for i := 0; i < n; i++ {
			record := dataset.At(i)
			rowFeatures(features, record.Arm, arms)

			eta := 0.0
			for j := 0; j < p; j++ {
				eta += beta[j] * features[j]
			}
			mu := 1 / (1 + math.Exp(-eta))
			weight := mu * (1 - mu)

			for j := 0; j < p; j++ {
				score.SetVec(j, score.AtVec(j)+(record.Outcome-mu)*features[j])
				for k := j; k < p; k++ {
					info.SetSym(j, k, info.At(j, k)+weight*features[j]*features[k])
				}
			}
		}

		if ok := chol.Factorize(info); !ok {
			return nil, nil, false
		}

		delta := mat.NewVecDense(p, nil)
		if err := chol.SolveVecTo(delta, score); err != nil {
			return nil, nil, false
		}

		maxStep := 0.0
		for j := 0; j < p; j++ {
			beta[j] += delta.AtVec(j)
			if step := math.Abs(delta.AtVec(j)); step > maxStep {
				maxStep = step
			}
		}

		if maxStep < a.tolerance {
			covariance = mat.NewSymDense(p, nil)
			if err := chol.InverseTo(covariance); err != nil {
				return nil, nil, false
			}
			return beta, covariance, true
		}
	}
	return nil, nil, false
}

// rowFeatures writes the design-matrix row for one record: intercept then
// one indicator per non-reference arm.
func rowFeatures(dst []float64, arm, arms int) {
	dst[0] = 1
	for j := 1; j < arms; j++ {
		if arm == j {
			dst[j] = 1
		} else {
			dst[j] = 0
		}
	}
}
