// Package stats provides the numeric primitives behind the deviation-based
// fraud rule: arithmetic mean and sample standard deviation.
package stats

import (
	"errors"
	"math"
)

var (
	// ErrEmpty is returned when a sequence has no values.
	ErrEmpty = errors.New("stats: empty sequence")

	// ErrInsufficientData is returned when a sequence is too short for the
	// requested statistic. Callers treat this as "rule disabled", not failure.
	ErrInsufficientData = errors.New("stats: need at least 2 values")
)

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrEmpty
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), nil
}

// SampleStdDev returns the sample standard deviation of xs using Bessel's
// correction (n-1 denominator). Requires at least 2 values; with fewer the
// statistic is undefined and callers must skip deviation-based logic.
func SampleStdDev(xs []float64) (float64, error) {
	if len(xs) < 2 {
		return 0, ErrInsufficientData
	}
	mean, err := Mean(xs)
	if err != nil {
		return 0, err
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1)), nil
}
