package trial

import (
	"fmt"

	"gopower/domain/core"
)

// Look is one planned interim analysis: the cumulative enrollment at which
// it happens and the nominal significance threshold to apply there. The
// threshold comes from an external boundary designer; the engine consumes
// it as given.
type Look struct {
	CumulativeN int     `json:"cumulative_n"`
	Threshold   float64 `json:"threshold"`
}

// LookSchedule is the ordered sequence of looks for a group-sequential
// trial. Strictly increasing in CumulativeN, with the final look at the
// design's full sample size. The engine never mutates a schedule.
type LookSchedule []Look

// Validate checks the schedule shape against the design's sample size.
// Spending-function mathematics are not re-derived here, only the shape
// the sequential runner depends on.
func (ls LookSchedule) Validate(totalN int) error {
	if len(ls) == 0 {
		return core.ErrEmptySchedule
	}
	prev := 0
	for i, look := range ls {
		if look.CumulativeN <= prev {
			return fmt.Errorf("%w: look %d cumulative_n %d after %d",
				core.ErrNonMonotonicSchedule, i+1, look.CumulativeN, prev)
		}
		if look.Threshold <= 0 || look.Threshold >= 1 {
			return core.NewScheduleError(i+1, fmt.Sprintf("threshold %v outside (0,1)", look.Threshold))
		}
		prev = look.CumulativeN
	}
	if final := ls[len(ls)-1].CumulativeN; final != totalN {
		return core.NewScheduleError(len(ls), fmt.Sprintf("final cumulative_n %d != sample size %d", final, totalN))
	}
	return nil
}

// InformationFractions returns each look's share of the full sample size.
func (ls LookSchedule) InformationFractions() []float64 {
	if len(ls) == 0 {
		return nil
	}
	total := float64(ls[len(ls)-1].CumulativeN)
	fractions := make([]float64, len(ls))
	for i, look := range ls {
		fractions[i] = float64(look.CumulativeN) / total
	}
	return fractions
}

// StopState is the state of one simulated sequential trial. A trial starts
// Running at the first look and ends in exactly one terminal state; the
// runner must never analyze a look after reaching a terminal state.
type StopState int

const (
	// StateRunning means the trial is still examining looks.
	StateRunning StopState = iota
	// StateStoppedSignificant means an efficacy boundary was crossed.
	StateStoppedSignificant
	// StateRanToFinal means every look was examined without crossing.
	StateRanToFinal
)

// Terminal reports whether the state ends the trial.
func (s StopState) Terminal() bool {
	return s != StateRunning
}

func (s StopState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStoppedSignificant:
		return "stopped_significant"
	case StateRanToFinal:
		return "ran_to_final"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TrialOutcome records where one sequential trial ended: the 1-based look
// index at which it stopped, the terminal state, and the fit result computed
// at that look. Immutable once the runner's loop over looks completes.
type TrialOutcome struct {
	StopLook int       `json:"stop_look"`
	State    StopState `json:"state"`
	Result   FitResult `json:"result"`
}

// Significant reports whether the trial stopped by crossing its boundary.
func (to TrialOutcome) Significant() bool {
	return to.State == StateStoppedSignificant
}
