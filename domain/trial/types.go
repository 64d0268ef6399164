package trial

import (
	"fmt"

	"gopower/domain/core"
)

// ============================================================================
// STABLE PRIMITIVES (Canonical, never change)
// ============================================================================

// Design is the immutable configuration of one simulated experiment:
// how many arms, the per-arm outcome parameter, and the total sample size.
// INVARIANTS:
// - len(Props) == Arms
// - SampleSize >= Arms (otherwise balanced assignment is impossible)
// - every Props[i] in [0, 1] for the binary-outcome family
type Design struct {
	Arms       int       `json:"arms"`
	Props      []float64 `json:"props"`
	SampleSize int       `json:"sample_size"`
}

// NewTwoArmDesign builds the standard two-arm design used throughout the engine.
func NewTwoArmDesign(controlProp, treatmentProp float64, sampleSize int) Design {
	return Design{
		Arms:       2,
		Props:      []float64{controlProp, treatmentProp},
		SampleSize: sampleSize,
	}
}

// Validate checks the design invariants. Violations are fatal and reported
// before any simulation starts.
func (d Design) Validate() error {
	if d.Arms < 2 {
		return core.NewDesignError("arms", fmt.Sprintf("need at least 2 arms, got %d", d.Arms))
	}
	if len(d.Props) != d.Arms {
		return fmt.Errorf("%w: %d props for %d arms", core.ErrArmCountMismatch, len(d.Props), d.Arms)
	}
	if d.SampleSize <= 0 {
		return core.NewDesignError("sample_size", fmt.Sprintf("must be positive, got %d", d.SampleSize))
	}
	if d.SampleSize < d.Arms {
		return fmt.Errorf("%w: n=%d, arms=%d", core.ErrTooFewSubjects, d.SampleSize, d.Arms)
	}
	for i, p := range d.Props {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: props[%d]=%v", core.ErrParameterDomain, i, p)
		}
	}
	return nil
}

// Record is one simulated unit: an arm assignment drawn once and an outcome
// drawn once, conditioned only on the arm's parameter.
type Record struct {
	Arm     int     `json:"arm"`
	Outcome float64 `json:"outcome"`
}

// Dataset is an ordered, read-only sequence of Records produced fresh for
// each repetition. Prefix views share the backing array; records are never
// mutated after generation.
type Dataset struct {
	records []Record
}

// NewDataset wraps generated records. The caller must not retain the slice.
func NewDataset(records []Record) Dataset {
	return Dataset{records: records}
}

// Len returns the number of records.
func (ds Dataset) Len() int {
	return len(ds.records)
}

// At returns the record at index i.
func (ds Dataset) At(i int) Record {
	return ds.records[i]
}

// Prefix returns a read-only view of the first n records. Interim looks at
// accumulating data are supersets of earlier looks, never resamples, so a
// prefix is exactly "the trial as seen after n enrollments".
func (ds Dataset) Prefix(n int) Dataset {
	if n >= len(ds.records) {
		return ds
	}
	return Dataset{records: ds.records[:n]}
}

// ArmCounts returns the number of records per arm.
func (ds Dataset) ArmCounts(arms int) []int {
	counts := make([]int, arms)
	for _, r := range ds.records {
		if r.Arm >= 0 && r.Arm < arms {
			counts[r.Arm]++
		}
	}
	return counts
}

// ArmMean returns the mean outcome within one arm, and the arm size.
func (ds Dataset) ArmMean(arm int) (float64, int) {
	sum := 0.0
	n := 0
	for _, r := range ds.records {
		if r.Arm == arm {
			sum += r.Outcome
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// FitResult is one analysis outcome: the effect estimate for the target
// parameter with its standard error and two-sided p-value, or a tracked
// fit failure (non-convergence, separation) that aggregation counts as
// non-significant and reports separately.
type FitResult struct {
	Estimate      float64 `json:"estimate"`
	StdErr        float64 `json:"std_err"`
	PValue        float64 `json:"p_value"`
	SampleSize    int     `json:"sample_size"`
	Failed        bool    `json:"failed"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// NewFitFailure builds the tracked-failure result for a fit that could not
// produce a trustworthy estimate. PValue is pinned to 1 so a failed fit can
// never be counted as significant.
func NewFitFailure(reason string, sampleSize int) FitResult {
	return FitResult{
		PValue:        1.0,
		SampleSize:    sampleSize,
		Failed:        true,
		FailureReason: reason,
	}
}

// Significant reports whether this result crosses the given threshold.
// Failed fits are never significant.
func (fr FitResult) Significant(threshold float64) bool {
	return !fr.Failed && fr.PValue < threshold
}
