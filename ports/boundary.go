package ports

import (
	"context"

	"gopower/domain/trial"
)

// SpendingFamily selects how a boundary designer allocates the family-wise
// alpha across looks.
type SpendingFamily string

const (
	SpendingOBrienFleming SpendingFamily = "obrien-fleming"
	SpendingPocock        SpendingFamily = "pocock"
)

// BoundaryDesigner derives the per-look significance thresholds for a
// group-sequential trial. The engine consumes the returned schedule as an
// opaque ordered sequence and never recomputes the spending mathematics.
type BoundaryDesigner interface {
	// Schedule returns one Look per entry in cumulativeN, in order, with
	// the family-wise two-sided alpha spent across them.
	Schedule(ctx context.Context, cumulativeN []int, alpha float64) (trial.LookSchedule, error)
}
