package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := map[string]int{"00:00": 0, "09:30": 570, "23:59": 1439}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "9:30", "24:00", "12:60", "ab:cd", "12-30", "123:0"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
	assert.Equal(t, "09:05", FormatClock(545))
}

func TestWeekday(t *testing.T) {
	wd, err := Weekday("2025-02-10")
	require.NoError(t, err)
	assert.Equal(t, 1, wd)

	_, err = Weekday("2025-02-30")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestToTimestamp(t *testing.T) {
	loc, err := ParseOffset("+02:00")
	require.NoError(t, err)

	ts, err := ToTimestamp("2025-02-10", "09:00", loc)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-10T09:00:00+02:00", ts)

	ts, err = ToTimestamp("2025-02-10", "09:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-10T09:00:00Z", ts)
}

func TestTimestampRoundTrip(t *testing.T) {
	for _, offset := range []string{"Z", "+05:30", "-08:00"} {
		loc, err := ParseOffset(offset)
		require.NoError(t, err)
		for mins := 0; mins < 24*60; mins += 7 {
			clock := FormatClock(mins)
			ts, err := ToTimestamp("2025-02-10", clock, loc)
			require.NoError(t, err)

			extracted, err := ExtractTime(ts)
			require.NoError(t, err)
			again, err := ToTimestamp("2025-02-10", extracted, loc)
			require.NoError(t, err)
			assert.Equal(t, ts, again)
		}
	}
}

func TestParseOffsetRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"+5", "05:00", "+25:00", "+05-00"} {
		_, err := ParseOffset(bad)
		assert.ErrorIs(t, err, ErrInvalidOffset, bad)
	}
}

func TestParseDayEnd(t *testing.T) {
	end, err := ParseDayEnd("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, end)

	end, err = ParseDayEnd("17:00")
	require.NoError(t, err)
	assert.Equal(t, 1020, end)

	_, err = ParseClock("24:00")
	assert.Error(t, err)
}
