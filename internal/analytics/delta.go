package analytics

import "math"

// Delta returns the percentage change from previous to current, rounded to
// one decimal place. A zero baseline reports +100% when there is any current
// activity and 0% when both windows are empty, so dashboards never divide
// by zero.
func Delta(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current-previous)/previous*1000) / 10
}
