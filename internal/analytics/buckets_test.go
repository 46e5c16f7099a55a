package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseGranularity(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, GranularityHour, ChooseGranularity(now.Add(-24*time.Hour), now))
	assert.Equal(t, GranularityHour, ChooseGranularity(now.Add(-36*time.Hour), now))
	assert.Equal(t, GranularityDay, ChooseGranularity(now.Add(-37*time.Hour), now))
	assert.Equal(t, GranularityDay, ChooseGranularity(now.Add(-7*24*time.Hour), now))
}

func TestBucketKey(t *testing.T) {
	ts := time.Date(2026, 8, 29, 13, 45, 12, 0, time.UTC)

	assert.Equal(t, "2026-08-29", BucketKey(ts, GranularityDay))
	assert.Equal(t, "2026-08-29 13:00", BucketKey(ts, GranularityHour))

	// Non-UTC inputs are normalized before formatting.
	zone := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, "2026-08-29 11:00", BucketKey(ts.In(zone), GranularityHour))
}

func TestFillGaps_Daily(t *testing.T) {
	from := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 29, 17, 0, 0, 0, time.UTC)

	rows := []Point{
		{Bucket: "2026-08-26", Views: 5, Visitors: 3},
		{Bucket: "2026-08-28", Views: 2, Visitors: 2},
	}

	series := FillGaps(rows, from, to, GranularityDay)
	require.Len(t, series, 5)

	assert.Equal(t, Point{Bucket: "2026-08-25"}, series[0])
	assert.Equal(t, Point{Bucket: "2026-08-26", Views: 5, Visitors: 3}, series[1])
	assert.Equal(t, Point{Bucket: "2026-08-27"}, series[2])
	assert.Equal(t, Point{Bucket: "2026-08-28", Views: 2, Visitors: 2}, series[3])
	assert.Equal(t, Point{Bucket: "2026-08-29"}, series[4])
}

func TestFillGaps_Hourly(t *testing.T) {
	from := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	to := time.Date(2026, 8, 29, 13, 10, 0, 0, time.UTC)

	rows := []Point{{Bucket: "2026-08-29 11:00", Views: 4, Visitors: 1}}

	series := FillGaps(rows, from, to, GranularityHour)
	require.Len(t, series, 4)

	assert.Equal(t, "2026-08-29 10:00", series[0].Bucket)
	assert.Equal(t, int64(4), series[1].Views)
	assert.Equal(t, "2026-08-29 12:00", series[2].Bucket)
	assert.Equal(t, "2026-08-29 13:00", series[3].Bucket)
}

func TestFillGaps_DropsRowsOutsideWindow(t *testing.T) {
	from := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	rows := []Point{
		{Bucket: "2026-08-01", Views: 99, Visitors: 99},
		{Bucket: "2026-08-28", Views: 1, Visitors: 1},
	}

	series := FillGaps(rows, from, to, GranularityDay)
	require.Len(t, series, 2)
	assert.Equal(t, int64(1), series[0].Views)
	assert.Equal(t, int64(0), series[1].Views)
}

func TestFillGaps_InvertedWindowIsEmpty(t *testing.T) {
	from := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	to := from.Add(-48 * time.Hour)

	series := FillGaps(nil, from, to, GranularityDay)
	assert.NotNil(t, series)
	assert.Empty(t, series)
}

func TestFillGaps_EmptyRowsYieldZeroSeries(t *testing.T) {
	from := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	series := FillGaps(nil, from, to, GranularityDay)
	require.Len(t, series, 3)
	for _, p := range series {
		assert.Zero(t, p.Views)
		assert.Zero(t, p.Visitors)
	}
}
