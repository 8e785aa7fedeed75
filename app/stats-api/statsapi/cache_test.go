package statsapi

import (
	"testing"
	"time"
)

func testDateRange(startDay, endDay int) dateRange {
	return dateRange{
		Start: time.Date(2026, 2, startDay, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, endDay, 0, 0, 0, 0, time.UTC),
	}
}

func Test_cacheKey(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   string
		lineNumber string
		dates      dateRange
		want       string
	}{
		{
			"line endpoint",
			"max-delay",
			"152",
			testDateRange(9, 15),
			"stats:max-delay:152:2026-02-09:2026-02-15",
		},
		{
			"summary endpoint",
			"summary",
			summaryCacheLine,
			testDateRange(1, 18),
			"stats:summary:all:2026-02-01:2026-02-18",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cacheKey(tt.endpoint, tt.lineNumber, tt.dates); got != tt.want {
				t.Errorf("cacheKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func Test_cacheTTL(t *testing.T) {
	tests := []struct {
		name  string
		dates dateRange
		want  time.Duration
	}{
		{"single day", testDateRange(9, 9), shortCacheTTL},
		{"six day span", testDateRange(9, 15), shortCacheTTL},
		{"seven day span", testDateRange(9, 16), longCacheTTL},
		{"month span", testDateRange(1, 28), longCacheTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cacheTTL(tt.dates); got != tt.want {
				t.Errorf("cacheTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}
