package clock

import "fmt"

type FormatErrorKind string

const (
	TooManyTimes      FormatErrorKind = "too many times"
	WrongFormat       FormatErrorKind = "wrong format"
	TooSmallIntervals FormatErrorKind = "too small intervals"
)

// FormatError reports a user supplied time list that cannot be scheduled.
type FormatError struct {
	Kind  FormatErrorKind
	Input string
}

func (e *FormatError) Error() string {
	if e.Input == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Input)
}

// Message is the text shown to the user for this kind of error.
func (e *FormatError) Message() string {
	switch e.Kind {
	case TooManyTimes:
		return fmt.Sprintf("No more than %d updates can be scheduled per day.", MaxTimesPerDay)
	case TooSmallIntervals:
		return fmt.Sprintf("Updates must be at least %d hours apart.", MinIntervalHours)
	default:
		return "Wrong time format. Use a comma separated list like 09:00, 13:00, 17:00."
	}
}
