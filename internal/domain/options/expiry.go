package options

import "time"

// DefaultExpirationHorizonDays bounds how far ahead Expirations looks
const DefaultExpirationHorizonDays = 365

// Expirations enumerates candidate expiration dates as YYMMDD strings,
// ordered and deterministic for a fixed today. A day is included when it
// is a Friday (weeklies), the 3rd Friday (monthlies), the last Friday of
// its month, or any weekday within the final 7 calendar days of its month
// (end-of-month and quarterly witching listings).
//
// Used only to synthesize contract symbols for full-chain scans; single
// ticker scans take the provider's own contract list.
func Expirations(today time.Time, maxCount, horizonDays int) []string {
	if horizonDays <= 0 {
		horizonDays = DefaultExpirationHorizonDays
	}

	dates := make([]string, 0, maxCount)
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	for i := 0; i < horizonDays && len(dates) < maxCount; i++ {
		day = day.AddDate(0, 0, 1)

		if isExpirationCandidate(day) {
			dates = append(dates, day.Format("060102"))
		}
	}

	return dates
}

func isExpirationCandidate(day time.Time) bool {
	if day.Weekday() == time.Friday {
		return true
	}

	// Any weekday in the last week of the month. This also covers the
	// monthly 3rd-Friday and last-Friday listings, which are Fridays anyway.
	if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
		if daysInMonth(day)-day.Day() < 7 {
			return true
		}
	}

	return false
}

func daysInMonth(day time.Time) int {
	firstOfNext := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
