package media

import (
	"math"
	"testing"

	"github.com/camden-git/framesys/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFirstHalf(t *testing.T) {
	got, err := Sample(100, models.ScanRangeFirstHalf, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 20, 30, 40}, got)
}

func TestSampleClampsTail(t *testing.T) {
	got, err := Sample(10, models.ScanRangeFull, 3)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []float64{0, 3, 6, 9}, got)

	got, err = Sample(10, models.ScanRangeFull, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4, 8}, got)

	// last sample lands inside the epsilon window before end
	got, err = Sample(10.05, models.ScanRangeFull, 2.5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.InDelta(t, 9.95, got[4], 1e-9)
}

func TestSampleRanges(t *testing.T) {
	cases := []struct {
		r          models.ScanRange
		start, end float64
	}{
		{models.ScanRangeFull, 0, 120},
		{models.ScanRangeFirstHalf, 0, 60},
		{models.ScanRangeSecondHalf, 60, 120},
		{models.ScanRangeFirstQuarter, 0, 30},
		{models.ScanRangeLastQuarter, 90, 120},
	}
	for _, tc := range cases {
		t.Run(string(tc.r), func(t *testing.T) {
			start, end, err := RangeBounds(120, tc.r)
			require.NoError(t, err)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)

			got, err := Sample(120, tc.r, 7)
			require.NoError(t, err)
			assert.Len(t, got, int(math.Ceil((end-start)/7)))
			assert.Equal(t, start, got[0])
		})
	}
}

func TestSampleProperties(t *testing.T) {
	durations := []float64{0.3, 1, 7.77, 59.94, 100, 3600.5}
	intervals := []float64{0.1, 0.25, 1, 2, 3.3, 30}
	ranges := []models.ScanRange{
		models.ScanRangeFull, models.ScanRangeFirstHalf, models.ScanRangeSecondHalf,
		models.ScanRangeFirstQuarter, models.ScanRangeLastQuarter,
	}
	for _, d := range durations {
		for _, iv := range intervals {
			for _, r := range ranges {
				start, end, err := RangeBounds(d, r)
				require.NoError(t, err)
				got, err := Sample(d, r, iv)
				require.NoError(t, err)

				require.NotEmpty(t, got, "d=%v iv=%v r=%s", d, iv, r)
				assert.InDelta(t, math.Ceil((end-start)/iv), float64(len(got)), 1, "d=%v iv=%v r=%s", d, iv, r)
				for i, ts := range got {
					assert.GreaterOrEqual(t, ts, start)
					assert.Less(t, ts, end)
					if i > 0 {
						assert.Greater(t, ts, got[i-1], "d=%v iv=%v r=%s", d, iv, r)
					}
				}
			}
		}
	}
}

func TestSampleRejectsInvalidInput(t *testing.T) {
	_, err := Sample(0, models.ScanRangeFull, 1)
	assert.ErrorIs(t, err, ErrInvalidSampling)

	_, err = Sample(10, models.ScanRangeFull, 0)
	assert.ErrorIs(t, err, ErrInvalidSampling)

	_, err = Sample(10, models.ScanRangeFull, -2)
	assert.ErrorIs(t, err, ErrInvalidSampling)

	_, err = Sample(math.NaN(), models.ScanRangeFull, 1)
	assert.ErrorIs(t, err, ErrInvalidSampling)

	_, err = Sample(10, "middle-third", 1)
	assert.ErrorIs(t, err, ErrInvalidSampling)

	_, err = Sample(1e9, models.ScanRangeFull, 0.001)
	assert.ErrorIs(t, err, ErrInvalidSampling)
}
