package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Design errors (malformed simulation inputs, fatal before any run)
	ErrInvalidDesign    = errors.New("invalid design")
	ErrTooFewSubjects   = fmt.Errorf("%w: sample size smaller than arm count", ErrInvalidDesign)
	ErrParameterDomain  = fmt.Errorf("%w: outcome parameter outside valid domain", ErrInvalidDesign)
	ErrArmCountMismatch = fmt.Errorf("%w: parameter vector length does not match arm count", ErrInvalidDesign)

	// Configuration errors (fatal at the aggregator boundary)
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNoRepetitions        = fmt.Errorf("%w: repetition count must be positive", ErrInvalidConfiguration)
	ErrEmptySchedule        = fmt.Errorf("%w: look schedule is empty", ErrInvalidConfiguration)
	ErrNonMonotonicSchedule = fmt.Errorf("%w: look schedule must be strictly increasing", ErrInvalidConfiguration)
)

// Error constructors with context
func NewDesignError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDesign, field, reason)
}

func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfiguration, field, reason)
}

func NewScheduleError(lookIndex int, reason string) error {
	return fmt.Errorf("%w: look %d: %s", ErrInvalidConfiguration, lookIndex, reason)
}

// Error checking helpers
func IsInvalidDesign(err error) bool {
	return errors.Is(err, ErrInvalidDesign)
}

func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
