package power

import "gopower/domain/trial"

// Interval is a two-sided confidence interval on a proportion, computed by
// the exact Clopper-Pearson method so it stays honest at small repetition
// counts and near 0 or 1.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// Contains reports whether p lies inside the interval.
func (iv Interval) Contains(p float64) bool {
	return p >= iv.Lower && p <= iv.Upper
}

// Width returns the interval width.
func (iv Interval) Width() float64 {
	return iv.Upper - iv.Lower
}

// PowerSummary is the aggregate over all repetitions of one power run:
// the proportion of repetitions reaching significance, its exact interval,
// and the fit-failure diagnostics. Recomputed fresh per aggregation call,
// never partially filled.
type PowerSummary struct {
	Power       float64  `json:"power"`
	CI          Interval `json:"ci"`
	Significant int      `json:"significant"`
	Repetitions int      `json:"repetitions"`
	Alpha       float64  `json:"alpha"`

	// Fit-failure diagnostics. Failed fits count as non-significant but
	// are surfaced here so a run of failures is distinguishable from a
	// genuine null result.
	FitFailures    int     `json:"fit_failures"`
	FitFailureRate float64 `json:"fit_failure_rate"`
	AllFitsFailed  bool    `json:"all_fits_failed"`
}

// StopGroup summarizes the trials that ended at one stopping point: the
// 1-based look index, whether they stopped on efficacy or ran out of looks,
// the share of all trials, its exact interval, and the mean effect estimate
// among the group. The mean-by-group view is what exposes early-stopping
// effect-size inflation.
type StopGroup struct {
	Look         int             `json:"look"`
	State        trial.StopState `json:"state"`
	Trials       int             `json:"trials"`
	Proportion   float64         `json:"proportion"`
	CI           Interval        `json:"ci"`
	MeanEstimate float64         `json:"mean_estimate"`
	SDEstimate   float64         `json:"sd_estimate"`
}

// StopDistribution is the per-stopping-point breakdown of a sequential run.
// Groups are ordered by look; trials that examined every look without
// crossing a boundary form their own category. Proportions across all
// groups sum to 1 within floating tolerance.
type StopDistribution struct {
	Groups []StopGroup `json:"groups"`
	Trials int         `json:"trials"`
}

// TotalProportion sums the group proportions; callers use it as a sanity
// check against 1.
func (sd StopDistribution) TotalProportion() float64 {
	total := 0.0
	for _, g := range sd.Groups {
		total += g.Proportion
	}
	return total
}

// SequentialSummary bundles the two products of a sequential run.
type SequentialSummary struct {
	Power PowerSummary     `json:"power"`
	Stops StopDistribution `json:"stops"`
}
