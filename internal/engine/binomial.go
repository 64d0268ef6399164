package engine

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"gopower/domain/core"
	"gopower/domain/power"
)

// ClopperPearson computes the exact two-sided confidence interval for a
// binomial proportion via beta-distribution quantiles. Exact rather than
// a normal approximation: repetition counts can be small (< 200) and the
// estimate often sits near 0 or 1, exactly where approximations fail.
func ClopperPearson(successes, n int, confLevel float64) (power.Interval, error) {
	if n <= 0 {
		return power.Interval{}, core.NewConfigurationError("n", fmt.Sprintf("must be positive, got %d", n))
	}
	if successes < 0 || successes > n {
		return power.Interval{}, core.NewConfigurationError("successes", fmt.Sprintf("%d out of range [0,%d]", successes, n))
	}
	if confLevel <= 0 || confLevel >= 1 {
		return power.Interval{}, core.NewConfigurationError("conf_level", fmt.Sprintf("%v outside (0,1)", confLevel))
	}

	tail := (1 - confLevel) / 2
	x := float64(successes)
	nn := float64(n)

	iv := power.Interval{Level: confLevel}
	if successes == 0 {
		iv.Lower = 0
	} else {
		lo := distuv.Beta{Alpha: x, Beta: nn - x + 1}
		iv.Lower = lo.Quantile(tail)
	}
	if successes == n {
		iv.Upper = 1
	} else {
		hi := distuv.Beta{Alpha: x + 1, Beta: nn - x}
		iv.Upper = hi.Quantile(1 - tail)
	}
	return iv, nil
}
