package appsflyer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   DateRange
	}{
		{"today", DateRange{"2024-03-15", "2024-03-15"}},
		{"yesterday", DateRange{"2024-03-14", "2024-03-14"}},
		{"last10", DateRange{"2024-03-06", "2024-03-15"}},
		{"10d", DateRange{"2024-03-06", "2024-03-15"}},
		{"last30", DateRange{"2024-02-15", "2024-03-15"}},
		{"30d", DateRange{"2024-02-15", "2024-03-15"}},
		{"mtd", DateRange{"2024-03-01", "2024-03-15"}},
		{"lastmonth", DateRange{"2024-02-01", "2024-02-29"}},
		{"", DateRange{"2024-03-06", "2024-03-15"}},
		{"bogus", DateRange{"2024-03-06", "2024-03-15"}},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodRange(tt.period, now, time.UTC))
		})
	}
}

func TestPeriodRange_UsesReferenceZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 23:30 UTC on Jan 31 is already Feb 1 in Berlin.
	now := time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, DateRange{"2024-02-01", "2024-02-01"}, PeriodRange("today", now, berlin))
	assert.Equal(t, DateRange{"2024-01-01", "2024-01-31"}, PeriodRange("lastmonth", now, berlin))
}

func TestPeriodRange_LastMonthAcrossYear(t *testing.T) {
	now := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, DateRange{"2023-12-01", "2023-12-31"}, PeriodRange("lastmonth", now, time.UTC))
}

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, "mtd", NormalizePeriod(" MTD "))
	assert.Equal(t, "last10", NormalizePeriod("last7"))
}

func TestLookbackRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, DateRange{"2024-03-05", "2024-03-15"}, LookbackRange(10, now, time.UTC))
}
