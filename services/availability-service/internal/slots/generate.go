// Package slots builds the windows of one day: the baseline from the weekly
// rule, then persisted overrides, then active bookings.
package slots

import (
	"errors"
	"strings"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
)

var ErrInvalidWindowID = errors.New("invalid window id")

// Generate tiles the working interval of rule into windows of
// SlotDurationMinutes separated by BreakDurationMinutes. Only windows that fit
// entirely before EndTime are emitted. A nil, non-working or malformed rule
// yields nothing.
func Generate(date string, rule *model.WorkingHourRule, settings model.AvailabilitySettings) []model.ComputedWindow {
	if rule == nil || !rule.IsWorking {
		return nil
	}
	slot := settings.SlotDurationMinutes
	gap := settings.BreakDurationMinutes
	if slot <= 0 || gap < 0 {
		return nil
	}
	start, err := timeutil.ParseClock(rule.StartTime)
	if err != nil {
		return nil
	}
	end, err := timeutil.ParseDayEnd(rule.EndTime)
	if err != nil || end <= start {
		return nil
	}

	var out []model.ComputedWindow
	for cursor := start; cursor+slot <= end; cursor += slot + gap {
		s, e := timeutil.FormatClock(cursor), timeutil.FormatClock(cursor+slot)
		out = append(out, model.ComputedWindow{
			ID:          WindowID(date, s, e),
			StartTime:   s,
			EndTime:     e,
			IsAvailable: true,
		})
	}
	return out
}

// WindowID is the derived id of a window that has no persisted row:
// 2025-02-10@09:00-10:00.
func WindowID(date, start, end string) string {
	return date + "@" + start + "-" + end
}

// ParseWindowID reverses WindowID.
func ParseWindowID(id string) (date, start, end string, err error) {
	date, rest, ok := strings.Cut(id, "@")
	if !ok {
		return "", "", "", ErrInvalidWindowID
	}
	start, end, ok = strings.Cut(rest, "-")
	if !ok || !timeutil.ValidDate(date) || !timeutil.ValidClock(start) {
		return "", "", "", ErrInvalidWindowID
	}
	if _, err := timeutil.ParseDayEnd(end); err != nil {
		return "", "", "", ErrInvalidWindowID
	}
	return date, start, end, nil
}

// IsDerivedID reports whether id has the derived window id shape.
func IsDerivedID(id string) bool {
	_, _, _, err := ParseWindowID(id)
	return err == nil
}
