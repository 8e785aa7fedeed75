package statsapi

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/pl"
)

// maxRangeDays caps how much history a single request may scan.
const maxRangeDays = 92

var lineNumberPattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,5}$`)
var shapeIdPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// dateRange is an inclusive span of service dates. Both ends carry a local
// calendar date as midnight UTC, the same convention stop events are stored
// with.
type dateRange struct {
	Start time.Time
	End   time.Time
}

// days returns the length of the span, 0 for a single day range.
func (d dateRange) days() int {
	return int(d.End.Sub(d.Start).Hours() / 24)
}

/*
resolveDateRange determines the service date span of a statistics request.
An explicit start_date/end_date pair wins over the period parameter. Without
either the request covers today. Periods are anchored at today:

	today - just today's service date
	week  - monday of the current week through today
	month - first of the current month through today

today must arrive in the timezone the agencies operate in, a request shortly
after midnight local time would otherwise resolve to the previous day.
*/
func resolveDateRange(query url.Values, today time.Time) (dateRange, error) {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	startValue := query.Get("start_date")
	endValue := query.Get("end_date")
	if startValue != "" || endValue != "" {
		if startValue == "" || endValue == "" {
			return dateRange{}, fmt.Errorf("start_date and end_date must be provided together")
		}
		start, err := time.Parse("2006-01-02", startValue)
		if err != nil {
			return dateRange{}, fmt.Errorf("invalid start_date %q, expected YYYY-MM-DD", startValue)
		}
		end, err := time.Parse("2006-01-02", endValue)
		if err != nil {
			return dateRange{}, fmt.Errorf("invalid end_date %q, expected YYYY-MM-DD", endValue)
		}
		return validatedRange(dateRange{Start: start, End: end})
	}

	switch period := query.Get("period"); period {
	case "", "today":
		return dateRange{Start: day, End: day}, nil
	case "week":
		daysSinceMonday := (int(day.Weekday()) + 6) % 7
		return dateRange{Start: day.AddDate(0, 0, -daysSinceMonday), End: day}, nil
	case "month":
		return dateRange{Start: time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC), End: day}, nil
	default:
		return dateRange{}, fmt.Errorf("invalid period %q, expected today, week or month", period)
	}
}

func validatedRange(dates dateRange) (dateRange, error) {
	if dates.End.Before(dates.Start) {
		return dateRange{}, fmt.Errorf("end_date %s is before start_date %s",
			formatDate(dates.End), formatDate(dates.Start))
	}
	if dates.days() > maxRangeDays {
		return dateRange{}, fmt.Errorf("date range spans %d days, the maximum is %d",
			dates.days(), maxRangeDays)
	}
	return dates, nil
}

func formatDate(at time.Time) string {
	return at.Format("2006-01-02")
}

// formatLocalTime renders a timestamp the analytics SQL already shifted into
// the local timezone.
func formatLocalTime(at time.Time) string {
	return at.Format("2006-01-02 15:04:05")
}

// Schedule day type labels served with the trend endpoint. Polish agencies run
// three schedule variants, sundays share the holiday one.
const (
	dayTypeWeekday       = "weekday"
	dayTypeSaturday      = "saturday"
	dayTypeSundayHoliday = "sunday_holiday"
)

//serviceCalendar classifies service dates into schedule day types
type serviceCalendar struct {
	calendar *cal.BusinessCalendar
}

//makeServiceCalendar builds serviceCalendar with the Polish national holidays
func makeServiceCalendar() *serviceCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(pl.Holidays...)
	return &serviceCalendar{calendar: calendar}
}

//dayType returns the schedule day type label for the service date at
func (s *serviceCalendar) dayType(at time.Time) string {
	_, observed, _ := s.calendar.IsHoliday(at)
	if observed || at.Weekday() == time.Sunday {
		return dayTypeSundayHoliday
	}
	if at.Weekday() == time.Saturday {
		return dayTypeSaturday
	}
	return dayTypeWeekday
}
