package statsapi

import (
	"net/url"
	"testing"
	"time"
)

func Test_resolveDateRange(t *testing.T) {
	// a wednesday in the middle of the month
	today := time.Date(2026, 2, 18, 14, 30, 0, 0, time.UTC)

	type want struct {
		start   string
		end     string
		wantErr bool
	}
	tests := []struct {
		name  string
		query string
		want  want
	}{
		{
			"no parameters cover today",
			"",
			want{start: "2026-02-18", end: "2026-02-18"},
		},
		{
			"period today",
			"period=today",
			want{start: "2026-02-18", end: "2026-02-18"},
		},
		{
			"period week starts monday",
			"period=week",
			want{start: "2026-02-16", end: "2026-02-18"},
		},
		{
			"period month starts on the first",
			"period=month",
			want{start: "2026-02-01", end: "2026-02-18"},
		},
		{
			"explicit dates",
			"start_date=2026-01-05&end_date=2026-01-10",
			want{start: "2026-01-05", end: "2026-01-10"},
		},
		{
			"explicit dates win over period",
			"start_date=2026-01-05&end_date=2026-01-10&period=month",
			want{start: "2026-01-05", end: "2026-01-10"},
		},
		{
			"single day range",
			"start_date=2026-01-05&end_date=2026-01-05",
			want{start: "2026-01-05", end: "2026-01-05"},
		},
		{
			"start date alone is rejected",
			"start_date=2026-01-05",
			want{wantErr: true},
		},
		{
			"end date alone is rejected",
			"end_date=2026-01-10",
			want{wantErr: true},
		},
		{
			"malformed start date",
			"start_date=05-01-2026&end_date=2026-01-10",
			want{wantErr: true},
		},
		{
			"malformed end date",
			"start_date=2026-01-05&end_date=tomorrow",
			want{wantErr: true},
		},
		{
			"end before start",
			"start_date=2026-01-10&end_date=2026-01-05",
			want{wantErr: true},
		},
		{
			"ninety two day span is accepted",
			"start_date=2026-01-01&end_date=2026-04-03",
			want{start: "2026-01-01", end: "2026-04-03"},
		},
		{
			"longer span is rejected",
			"start_date=2026-01-01&end_date=2026-04-04",
			want{wantErr: true},
		},
		{
			"unknown period",
			"period=year",
			want{wantErr: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad test query %q: %v", tt.query, err)
			}
			dates, err := resolveDateRange(query, today)
			if (err != nil) != tt.want.wantErr {
				t.Fatalf("resolveDateRange() error = %v, wantErr %v", err, tt.want.wantErr)
			}
			if tt.want.wantErr {
				return
			}
			if got := formatDate(dates.Start); got != tt.want.start {
				t.Errorf("resolveDateRange() start = %s, want %s", got, tt.want.start)
			}
			if got := formatDate(dates.End); got != tt.want.end {
				t.Errorf("resolveDateRange() end = %s, want %s", got, tt.want.end)
			}
		})
	}
}

func Test_resolveDateRange_weekAnchors(t *testing.T) {
	tests := []struct {
		name      string
		today     time.Time
		wantStart string
	}{
		{
			"monday is its own week start",
			time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC),
			"2026-02-16",
		},
		{
			"sunday reaches back to monday",
			time.Date(2026, 2, 22, 9, 0, 0, 0, time.UTC),
			"2026-02-16",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := url.Values{"period": []string{"week"}}
			dates, err := resolveDateRange(query, tt.today)
			if err != nil {
				t.Fatalf("resolveDateRange() error = %v", err)
			}
			if got := formatDate(dates.Start); got != tt.wantStart {
				t.Errorf("resolveDateRange() start = %s, want %s", got, tt.wantStart)
			}
			if got := formatDate(dates.End); got != formatDate(tt.today) {
				t.Errorf("resolveDateRange() end = %s, want %s", got, formatDate(tt.today))
			}
		})
	}
}

func Test_dateRange_days(t *testing.T) {
	tests := []struct {
		name  string
		dates dateRange
		want  int
	}{
		{
			"single day",
			dateRange{
				Start: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
			},
			0,
		},
		{
			"one week",
			dateRange{
				Start: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
			},
			7,
		},
		{
			"across a month boundary",
			dateRange{
				Start: time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
			},
			11,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dates.days(); got != tt.want {
				t.Errorf("days() = %d, want %d", got, tt.want)
			}
		})
	}
}

func Test_serviceCalendar_dayType(t *testing.T) {
	calendar := makeServiceCalendar()

	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"regular monday", time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), dayTypeWeekday},
		{"regular friday", time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), dayTypeWeekday},
		{"saturday", time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), dayTypeSaturday},
		{"sunday", time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"new year", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"epiphany", time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"easter monday", time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"labour day", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"corpus christi", time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"independence day", time.Date(2026, 11, 11, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
		{"second day of christmas on a saturday", time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC), dayTypeSundayHoliday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calendar.dayType(tt.date); got != tt.want {
				t.Errorf("dayType(%s) = %s, want %s", formatDate(tt.date), got, tt.want)
			}
		})
	}
}

func Test_formatLocalTime(t *testing.T) {
	at := time.Date(2026, 2, 14, 16, 49, 30, 0, time.UTC)
	if got := formatLocalTime(at); got != "2026-02-14 16:49:30" {
		t.Errorf("formatLocalTime() = %s, want 2026-02-14 16:49:30", got)
	}
}
