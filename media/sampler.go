package media

import (
	"errors"
	"fmt"
	"math"

	"github.com/camden-git/framesys/models"
)

// ErrInvalidSampling is returned for a non-positive duration or interval, or an unknown range
var ErrInvalidSampling = errors.New("invalid sampling parameters")

const (
	// EndEpsilon keeps the last seek away from end-of-media, where decoders commonly fail
	EndEpsilon = 0.1
	// MaxSamples bounds a single scan
	MaxSamples = 100000
)

// RangeBounds maps a range selector onto its [start, end) slice of [0, duration)
func RangeBounds(duration float64, r models.ScanRange) (float64, float64, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return 0, 0, fmt.Errorf("%w: duration %v", ErrInvalidSampling, duration)
	}
	switch r {
	case models.ScanRangeFull, "":
		return 0, duration, nil
	case models.ScanRangeFirstHalf:
		return 0, duration / 2, nil
	case models.ScanRangeSecondHalf:
		return duration / 2, duration, nil
	case models.ScanRangeFirstQuarter:
		return 0, duration / 4, nil
	case models.ScanRangeLastQuarter:
		return duration * 3 / 4, duration, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown scan range %q", ErrInvalidSampling, r)
}

// Sample returns the seek timestamps for one scan: start, start+interval, ...
// while below end, with the last value clamped to end-epsilon. The result is
// strictly increasing and has ceil((end-start)/interval) entries.
func Sample(duration float64, r models.ScanRange, interval float64) ([]float64, error) {
	if !(interval > 0) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("%w: interval %v", ErrInvalidSampling, interval)
	}
	start, end, err := RangeBounds(duration, r)
	if err != nil {
		return nil, err
	}

	count := math.Ceil((end - start) / interval)
	if count > MaxSamples {
		return nil, fmt.Errorf("%w: %.0f samples exceeds limit of %d", ErrInvalidSampling, count, MaxSamples)
	}

	// epsilon never exceeds half an interval so a clamped tail stays above its predecessor
	eps := math.Min(EndEpsilon, interval/2)
	limit := math.Max(start, end-eps)

	out := make([]float64, 0, int(count))
	for i := 0; i < int(count); i++ {
		t := start + float64(i)*interval
		if t >= end {
			break
		}
		out = append(out, math.Min(t, limit))
	}
	return out, nil
}
