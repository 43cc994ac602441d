package expiry

import "github.com/golang-sql/civil"

// DaysUntil is exp minus today in whole days; negative once exp has passed.
func DaysUntil(today, exp civil.Date) int {
	return exp.DaysSince(today)
}

// TargetDate is the one expiration date a sweep on today looks for.
func TargetDate(today civil.Date, leadDays int) civil.Date {
	return today.AddDays(leadDays)
}

// DueOn is the sweep predicate: exp is exactly leadDays away.
func DueOn(today, exp civil.Date, leadDays int) bool {
	return exp == TargetDate(today, leadDays)
}

// UrgentlyDue is the save-time predicate: exp falls within
// [today, today+leadDays].
func UrgentlyDue(today, exp civil.Date, leadDays int) bool {
	n := DaysUntil(today, exp)
	return n >= 0 && n <= leadDays
}
