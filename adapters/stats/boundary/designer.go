package boundary

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"gopower/domain/core"
	"gopower/domain/trial"
	"gopower/ports"
)

// OBrienFleming derives O'Brien-Fleming-style per-look significance
// thresholds: very strict at early looks, relaxing toward the family-wise
// alpha at full information. The nominal threshold at information fraction
// t is 2*(1 - Phi(z_{alpha/2} / sqrt(t))).
type OBrienFleming struct{}

// NewOBrienFleming creates the O'Brien-Fleming designer.
func NewOBrienFleming() *OBrienFleming {
	return &OBrienFleming{}
}

// Schedule implements ports.BoundaryDesigner.
func (d *OBrienFleming) Schedule(ctx context.Context, cumulativeN []int, alpha float64) (trial.LookSchedule, error) {
	fractions, err := checkDesignInputs(ctx, cumulativeN, alpha)
	if err != nil {
		return nil, err
	}

	zCrit := distuv.UnitNormal.Quantile(1 - alpha/2)
	schedule := make(trial.LookSchedule, len(cumulativeN))
	for j, n := range cumulativeN {
		threshold := 2 * distuv.UnitNormal.Survival(zCrit/math.Sqrt(fractions[j]))
		// Survival underflows to exactly zero at extreme early fractions;
		// clamp so the schedule always satisfies the (0,1) threshold shape
		// the sequential runner validates.
		if threshold <= 0 {
			threshold = math.SmallestNonzeroFloat64
		}
		schedule[j] = trial.Look{CumulativeN: n, Threshold: threshold}
	}
	return schedule, nil
}

// Pocock derives Pocock-style thresholds: the same nominal significance
// level at every look. Uses the classical constants for alpha=0.05 up to
// five looks and falls back to the Bonferroni split elsewhere, which is
// strictly conservative.
type Pocock struct{}

// NewPocock creates the Pocock designer.
func NewPocock() *Pocock {
	return &Pocock{}
}

// pocockNominal05 holds the classical Pocock nominal levels for a
// family-wise two-sided alpha of 0.05, indexed by number of looks.
var pocockNominal05 = map[int]float64{
	1: 0.0500,
	2: 0.0294,
	3: 0.0221,
	4: 0.0182,
	5: 0.0158,
}

// Schedule implements ports.BoundaryDesigner.
func (d *Pocock) Schedule(ctx context.Context, cumulativeN []int, alpha float64) (trial.LookSchedule, error) {
	if _, err := checkDesignInputs(ctx, cumulativeN, alpha); err != nil {
		return nil, err
	}

	nominal, ok := 0.0, false
	if alpha == 0.05 {
		nominal, ok = pocockNominal05[len(cumulativeN)]
	}
	if !ok {
		nominal = alpha / float64(len(cumulativeN))
	}

	schedule := make(trial.LookSchedule, len(cumulativeN))
	for j, n := range cumulativeN {
		schedule[j] = trial.Look{CumulativeN: n, Threshold: nominal}
	}
	return schedule, nil
}

// ForFamily returns the designer for a spending family.
func ForFamily(family ports.SpendingFamily) (ports.BoundaryDesigner, error) {
	switch family {
	case ports.SpendingOBrienFleming:
		return NewOBrienFleming(), nil
	case ports.SpendingPocock:
		return NewPocock(), nil
	default:
		return nil, core.NewConfigurationError("spending_family", fmt.Sprintf("unknown family %q", family))
	}
}

func checkDesignInputs(ctx context.Context, cumulativeN []int, alpha float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cumulativeN) == 0 {
		return nil, core.ErrEmptySchedule
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.NewConfigurationError("alpha", fmt.Sprintf("%v outside (0,1)", alpha))
	}
	prev := 0
	total := float64(cumulativeN[len(cumulativeN)-1])
	fractions := make([]float64, len(cumulativeN))
	for j, n := range cumulativeN {
		if n <= prev {
			return nil, fmt.Errorf("%w: look %d cumulative_n %d after %d", core.ErrNonMonotonicSchedule, j+1, n, prev)
		}
		prev = n
		fractions[j] = float64(n) / total
	}
	return fractions, nil
}
