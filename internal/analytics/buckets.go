package analytics

import "time"

// Granularity selects the bucket width of a time series.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// BucketKey formats used throughout the stats pipeline. SQL produces the
// same shapes via to_char so that chart rows and gap fill keys line up.
const (
	dayKeyFormat  = "2006-01-02"
	hourKeyFormat = "2006-01-02 15:00"
)

// Point is one bucket of a time series.
type Point struct {
	Bucket   string `json:"date"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

// ChooseGranularity picks hourly buckets for short windows and daily
// buckets otherwise. The cutoff sits at 36 hours so a "last 24 hours"
// window renders hourly even when it straddles two calendar days.
func ChooseGranularity(from, to time.Time) Granularity {
	if to.Sub(from) <= 36*time.Hour {
		return GranularityHour
	}
	return GranularityDay
}

// BucketKey maps a timestamp to its bucket label in UTC.
func BucketKey(t time.Time, g Granularity) string {
	t = t.UTC()
	if g == GranularityHour {
		return t.Truncate(time.Hour).Format(hourKeyFormat)
	}
	return t.Format(dayKeyFormat)
}

// FillGaps expands sparse time series rows into a dense series covering
// every bucket from `from` through `to` inclusive, inserting zero points
// where no row exists. Rows outside the window are dropped. The result is
// ordered oldest first and is never nil; an inverted window yields an
// empty series.
func FillGaps(rows []Point, from, to time.Time, g Granularity) []Point {
	byKey := make(map[string]Point, len(rows))
	for _, r := range rows {
		byKey[r.Bucket] = r
	}

	from, to = from.UTC(), to.UTC()

	var cursor, last time.Time
	var step time.Duration
	if g == GranularityHour {
		cursor = from.Truncate(time.Hour)
		last = to.Truncate(time.Hour)
		step = time.Hour
	} else {
		cursor = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		last = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		step = 24 * time.Hour
	}

	series := []Point{}
	for !cursor.After(last) {
		key := BucketKey(cursor, g)
		if p, ok := byKey[key]; ok {
			series = append(series, p)
		} else {
			series = append(series, Point{Bucket: key})
		}
		cursor = cursor.Add(step)
	}
	return series
}
