package rng

import (
	"errors"
	"fmt"
)

// The checked helpers validate their arguments instead of faulting or
// wrapping around the way the unchecked ones do.

var (
	ErrZeroRange     = errors.New("range is zero")
	ErrInvertedRange = errors.New("upper bound is less than the lower bound")
)

func BelowChecked(src Source, n uint64) (uint64, error) {
	if n == 0 {
		return 0, ErrZeroRange
	}

	return Below(src, n), nil
}

func IntInRangeChecked(src Source, lower, upper int32) (int32, error) {
	if upper < lower {
		return 0, fmt.Errorf("%w: [%d, %d]", ErrInvertedRange, lower, upper)
	}

	return IntInRange(src, lower, upper), nil
}

func Int64InRangeChecked(src Source, lower, upper int64) (int64, error) {
	if upper < lower {
		return 0, fmt.Errorf("%w: [%d, %d]", ErrInvertedRange, lower, upper)
	}

	return Int64InRange(src, lower, upper), nil
}
