package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SecondsPerDay is the length of a nominal service day.
	SecondsPerDay = 24 * 60 * 60

	// lateNightSeconds marks 22:00:00. Schedule times at or past it that are
	// observed before 03:00 local belong to the previous service day.
	lateNightSeconds = 22 * 60 * 60

	lateNightCutoffHour = 3
)

// SecondsFromScheduleTime converts a GTFS HH:MM:SS schedule time to seconds past
// midnight of the service day. Hours may exceed 23 on overnight trips. Minutes
// and seconds must be two digits between 00 and 59.
func SecondsFromScheduleTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid schedule time %q", value)
	}
	for _, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("invalid schedule time %q", value)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid schedule time %q", value)
			}
		}
	}
	if len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, fmt.Errorf("invalid schedule time %q", value)
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.Atoi(parts[2])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid schedule time %q", value)
	}
	return hours*3600 + minutes*60 + seconds, nil
}

// ServiceDate returns the service day, at midnight UTC, that an event observed
// at eventTime belongs to. Overnight schedule times (at or past 24:00:00) always
// roll back one day, late night times seen before 03:00 local roll back too.
func ServiceDate(eventTime time.Time, scheduledSeconds int, loc *time.Location) time.Time {
	local := eventTime.In(loc)
	serviceDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if scheduledSeconds >= SecondsPerDay {
		serviceDate = serviceDate.AddDate(0, 0, -1)
	} else if scheduledSeconds >= lateNightSeconds && local.Hour() < lateNightCutoffHour {
		serviceDate = serviceDate.AddDate(0, 0, -1)
	}
	return serviceDate
}

// PlannedTime converts schedule seconds on a service date to a wall clock time
// in loc. 25:30:00 on February 9th becomes 1:30 AM on February 10th.
func PlannedTime(serviceDate time.Time, scheduledSeconds int, loc *time.Location) time.Time {
	dayOffset := scheduledSeconds / SecondsPerDay
	secondsInDay := scheduledSeconds % SecondsPerDay
	return time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day()+dayOffset,
		0, 0, secondsInDay, 0, loc)
}

// DelaySeconds is the observed delay of eventTime against plannedTime, negative
// when the vehicle ran early.
func DelaySeconds(eventTime time.Time, plannedTime time.Time) int {
	return int(eventTime.Sub(plannedTime) / time.Second)
}
