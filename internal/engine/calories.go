package engine

import "time"

const (
	// kcal per watt-minute of external work, plus a baseline metabolic
	// term of 1 kcal/min that burns regardless of output.
	caloriesPerWattMinute = 0.01433
	baselineKcalPerMinute = 1.0

	minCalorieMinutes = 0.1
)

// Calories integrates average power over gated session time into kcal.
type Calories struct {
	Total   float64 `json:"total"`    // kcal
	PerHour float64 `json:"per_hour"` // kcal/h
}

// Update recomputes the calorie totals; below the elapsed-time floor it is a
// no-op so startup noise never produces phantom calories.
func (c *Calories) Update(averagePower float64, elapsed time.Duration) {
	minutes := elapsed.Minutes()
	if minutes < minCalorieMinutes {
		return
	}

	c.Total = averagePower*caloriesPerWattMinute*minutes + baselineKcalPerMinute*minutes
	c.PerHour = c.Total * (60.0 / minutes)
}
