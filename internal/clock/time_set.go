package clock

import (
	"slices"
	"strings"
)

const (
	MaxTimesPerDay   = 5
	MinIntervalHours = 4
)

// ParseTimeSet parses a comma separated list of "HH:MM" times and returns
// them in ascending order. Every pair of neighbours on the 24 hour wheel,
// including last to first, must be at least MinIntervalHours apart as
// reported by Diff.
func ParseTimeSet(raw string) ([]Time, error) {
	tokens := strings.Split(strings.TrimSpace(raw), ",")
	if len(tokens) > MaxTimesPerDay {
		return nil, &FormatError{Kind: TooManyTimes}
	}

	times := make([]Time, 0, len(tokens))
	for _, token := range tokens {
		t, err := Parse(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	slices.SortFunc(times, Time.Compare)

	if !intervalsValid(times) {
		return nil, &FormatError{Kind: TooSmallIntervals}
	}
	return times, nil
}

func intervalsValid(times []Time) bool {
	if len(times) == 1 {
		return true
	}
	for i, t := range times {
		hours, _ := t.Diff(times[(i+1)%len(times)])
		if hours < MinIntervalHours {
			return false
		}
	}
	return true
}

// JoinTimes renders times the way users type them.
func JoinTimes(times []Time) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
