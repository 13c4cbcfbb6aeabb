// Package timeutil converts between "HH:MM" wall-clock strings, "YYYY-MM-DD"
// dates and offset-anchored timestamps. No timezone database is consulted: every
// owner's local time is interpreted with one fixed UTC offset.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04"
	TimestampLayout = "2006-01-02T15:04:05Z07:00"
)

var (
	ErrInvalidClock  = errors.New("invalid time, expected HH:MM")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidOffset = errors.New("invalid UTC offset, expected +HH:MM or -HH:MM")
)

// ParseClock returns the minutes since midnight of an "HH:MM" string.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrInvalidClock
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, ErrInvalidClock
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, ErrInvalidClock
	}
	return h*60 + m, nil
}

// ParseDayEnd is ParseClock that also accepts "24:00" as the end of the day.
func ParseDayEnd(s string) (int, error) {
	if strings.TrimSpace(s) == "24:00" {
		return 24 * 60, nil
	}
	return ParseClock(s)
}

// FormatClock renders minutes since midnight as "HH:MM". 24:00 is allowed as a day end.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// Weekday returns 0 (Sunday) through 6 (Saturday) for a date string.
func Weekday(date string) (int, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int(t.Weekday()), nil
}

// ParseOffset turns "+05:30", "-08:00" or "Z" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || s == "UTC" {
		return time.UTC, nil
	}
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') {
		return nil, ErrInvalidOffset
	}
	mins, err := ParseClock(s[1:])
	if err != nil {
		return nil, ErrInvalidOffset
	}
	secs := mins * 60
	if s[0] == '-' {
		secs = -secs
	}
	return time.FixedZone("UTC"+s, secs), nil
}

// At anchors a clock string to a date in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), mins/60, mins%60, 0, 0, loc), nil
}

// ToTimestamp renders date+clock as an offset-qualified timestamp string,
// e.g. 2025-02-10T09:00:00+02:00.
func ToTimestamp(date, clock string, loc *time.Location) (string, error) {
	t, err := At(date, clock, loc)
	if err != nil {
		return "", err
	}
	return t.Format(TimestampLayout), nil
}

// ExtractTime returns the "HH:MM" wall-clock part of a timestamp, read in the
// timestamp's own offset.
func ExtractTime(ts string) (string, error) {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(ts))
	if err != nil {
		return "", fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return t.Format(ClockLayout), nil
}

// Today returns now's date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}
