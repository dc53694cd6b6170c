package appsflyer

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive from/to pair in YYYY-MM-DD form.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Periods lists the accepted period tokens.
var Periods = []string{"today", "yesterday", "last10", "10d", "last30", "30d", "mtd", "lastmonth"}

// DefaultPeriod is used for empty or unknown tokens.
const DefaultPeriod = "last10"

// NormalizePeriod lower-cases and trims a token, mapping unknown tokens to
// DefaultPeriod. Cache keys are built from the normalized token.
func NormalizePeriod(period string) string {
	p := strings.ToLower(strings.TrimSpace(period))
	for _, known := range Periods {
		if p == known {
			return p
		}
	}
	return DefaultPeriod
}

// PeriodRange resolves a period token against now, interpreted in loc.
func PeriodRange(period string, now time.Time, loc *time.Location) DateRange {
	if loc != nil {
		now = now.In(loc)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var from, to time.Time
	switch NormalizePeriod(period) {
	case "today":
		from, to = today, today
	case "yesterday":
		from = today.AddDate(0, 0, -1)
		to = from
	case "last30", "30d":
		from, to = today.AddDate(0, 0, -29), today
	case "mtd":
		from, to = today.AddDate(0, 0, 1-today.Day()), today
	case "lastmonth":
		firstOfMonth := today.AddDate(0, 0, 1-today.Day())
		to = firstOfMonth.AddDate(0, 0, -1)
		from = to.AddDate(0, 0, 1-to.Day())
	default:
		from, to = today.AddDate(0, 0, -9), today
	}
	return DateRange{From: from.Format(dateLayout), To: to.Format(dateLayout)}
}

// LookbackRange returns [today-days, today] in loc.
func LookbackRange(days int, now time.Time, loc *time.Location) DateRange {
	if loc != nil {
		now = now.In(loc)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return DateRange{From: today.AddDate(0, 0, -days).Format(dateLayout), To: today.Format(dateLayout)}
}
