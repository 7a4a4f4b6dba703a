package clock

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func requireFormatError(t *testing.T, err error, kind FormatErrorKind) {
	t.Helper()
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, kind, formatErr.Kind)
}

func TestParseTimeSetAccepts(t *testing.T) {
	cases := map[string]string{
		"09:00, 13:00, 17:00":               "09:00, 13:00, 17:00",
		"17:00,09:00 , 13:00":               "09:00, 13:00, 17:00",
		"  03:15  ":                         "03:15",
		"23:30":                             "23:30",
		"00:00, 04:00, 08:00, 12:00, 16:00": "00:00, 04:00, 08:00, 12:00, 16:00",
		"22:00, 02:00":                      "02:00, 22:00",
	}
	for raw, want := range cases {
		times, err := ParseTimeSet(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, JoinTimes(times), raw)
	}
}

func TestParseTimeSetRejectsTooManyTimes(t *testing.T) {
	_, err := ParseTimeSet("09:00, 09:00,13:00, 17:00, 20:00, 23:00, 02:00")
	requireFormatError(t, err, TooManyTimes)

	_, err = ParseTimeSet("garbage,,,,,")
	requireFormatError(t, err, TooManyTimes)
}

func TestParseTimeSetRejectsWrongFormat(t *testing.T) {
	for _, raw := range []string{"", "9:00", "09:00, 25:00", "09:00,", "09-00, 13:00", "09:00 13:00"} {
		_, err := ParseTimeSet(raw)
		requireFormatError(t, err, WrongFormat)
	}
}

func TestParseTimeSetRejectsSmallIntervals(t *testing.T) {
	for _, raw := range []string{
		"09:00, 12:00",
		"09:30, 13:29",
		"09:00, 09:00",
		"23:00, 02:00",
		"00:00, 04:00, 08:00, 12:00, 16:00, ",
		"00:00, 05:00, 10:00, 15:00, 21:00",
	} {
		_, err := ParseTimeSet(raw)
		require.Error(t, err, raw)
	}

	_, err := ParseTimeSet("09:00, 12:00")
	requireFormatError(t, err, TooSmallIntervals)

	_, err = ParseTimeSet("09:30, 13:29")
	requireFormatError(t, err, TooSmallIntervals)
}

func TestFormatErrorMessages(t *testing.T) {
	for _, kind := range []FormatErrorKind{TooManyTimes, WrongFormat, TooSmallIntervals} {
		err := &FormatError{Kind: kind}
		assert.NotEmpty(t, err.Message())
		assert.Equal(t, string(kind), err.Error())
	}
}
