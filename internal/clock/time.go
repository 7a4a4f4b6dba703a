package clock

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	hoursPerDay    = 24
	minutesPerHour = 60
	MinutesPerDay  = hoursPerDay * minutesPerHour
)

var timePattern = regexp.MustCompile(`^(\d\d):(\d\d)$`)

// Time is a wall-clock time of day. The zero value is 00:00.
type Time struct {
	hour   int
	minute int
}

// Parse accepts exactly "HH:MM" with hour in 0..23 and minute in 0..59.
func Parse(raw string) (Time, error) {
	match := timePattern.FindStringSubmatch(raw)
	if match == nil {
		return Time{}, &FormatError{Kind: WrongFormat, Input: raw}
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour >= hoursPerDay || minute >= minutesPerHour {
		return Time{}, &FormatError{Kind: WrongFormat, Input: raw}
	}
	return Time{hour, minute}, nil
}

func (t Time) Hour() int {
	return t.hour
}

func (t Time) Minute() int {
	return t.minute
}

// MinuteOfDay returns the number of minutes since midnight.
func (t Time) MinuteOfDay() int {
	return t.hour*minutesPerHour + t.minute
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

// Compare orders times by hour, then minute.
func (t Time) Compare(other Time) int {
	return t.MinuteOfDay() - other.MinuteOfDay()
}

// Diff returns the forward distance from t to other on a 24 hour wheel.
// The hour part is decremented when the minute part has to borrow, so a
// 3h59m gap reports 3 hours. Equal times are 0 hours apart.
func (t Time) Diff(other Time) (hours, minutes int) {
	if t.hour < other.hour {
		hours = other.hour - t.hour
	} else {
		hours = other.hour + hoursPerDay - t.hour
	}

	if t.minute > other.minute {
		minutes = other.minute + minutesPerHour - t.minute
		hours--
	} else {
		minutes = other.minute - t.minute
	}

	if hours == hoursPerDay {
		hours = 0
	}
	return hours, minutes
}

// Shift adds a signed number of minutes, wrapping around midnight.
func (t Time) Shift(offsetMinutes int) Time {
	total := (t.MinuteOfDay() + offsetMinutes) % MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return Time{total / minutesPerHour, total % minutesPerHour}
}
