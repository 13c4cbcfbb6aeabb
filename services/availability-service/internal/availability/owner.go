package availability

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
)

const maxSlotMinutes = 24 * 60

// DayOverride changes a single date. A nil IsAvailable leaves the whole-day
// exception untouched; a nil Windows leaves the explicit windows untouched,
// except that closing the day without windows removes the unbooked ones.
type DayOverride struct {
	IsAvailable *bool
	Reason      string
	Windows     []WindowSpec
}

type WindowSpec struct {
	StartTime   string
	EndTime     string
	IsAvailable bool
}

func (s *Service) WorkingHours(ctx context.Context, ownerID string) ([]model.WorkingHourRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rules, err := s.store.WorkingHours(ctx, ownerID, s.now())
	if err != nil {
		return nil, storeErr("load working hours", err)
	}
	return rules, nil
}

// ReplaceWorkingHours swaps the owner's whole weekly schedule. Days missing from
// rules become non-working.
func (s *Service) ReplaceWorkingHours(ctx context.Context, ownerID string, rules []model.WorkingHourRule) ([]model.WorkingHourRule, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	normalized := make([]model.WorkingHourRule, len(rules))
	for i, r := range rules {
		r.OwnerID = ownerID
		normalized[i] = r
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].DayOfWeek < normalized[j].DayOfWeek })

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.ReplaceWorkingHours(ctx, ownerID, normalized, s.now())
	})
	if err != nil {
		s.logger.Error("replace working hours failed", "owner_id", ownerID, "err", err)
		return nil, storeErr("replace working hours", err)
	}
	s.invalidateOwner(ctx, ownerID)
	s.logger.Info("working hours replaced", "owner_id", ownerID, "days", len(normalized))
	return normalized, nil
}

func validateRules(rules []model.WorkingHourRule) error {
	seen := map[int]bool{}
	for _, r := range rules {
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return apperr.Validation("day_of_week must be between 0 and 6")
		}
		if seen[r.DayOfWeek] {
			return apperr.Validation("day_of_week may appear only once")
		}
		seen[r.DayOfWeek] = true

		start, err := timeutil.ParseClock(r.StartTime)
		if err != nil {
			return apperr.Validation("start_time must be HH:MM")
		}
		end, err := timeutil.ParseDayEnd(r.EndTime)
		if err != nil {
			return apperr.Validation("end_time must be HH:MM")
		}
		if r.IsWorking && end <= start {
			return apperr.Validation("end_time must be after start_time")
		}
	}
	return nil
}

func (s *Service) Settings(ctx context.Context, ownerID string) (model.AvailabilitySettings, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	settings, err := s.store.Settings(ctx, ownerID, s.now())
	if err != nil {
		return model.AvailabilitySettings{}, storeErr("load settings", err)
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings model.AvailabilitySettings) (model.AvailabilitySettings, error) {
	switch {
	case settings.SlotDurationMinutes <= 0 || settings.SlotDurationMinutes > maxSlotMinutes:
		return model.AvailabilitySettings{}, apperr.Validation("slot_duration_minutes must be between 1 and 1440")
	case settings.BreakDurationMinutes < 0 || settings.BreakDurationMinutes > maxSlotMinutes:
		return model.AvailabilitySettings{}, apperr.Validation("break_duration_minutes must be between 0 and 1440")
	case settings.AdvanceBookingDays < 0 || settings.AdvanceBookingDays > 365:
		return model.AvailabilitySettings{}, apperr.Validation("advance_booking_days must be between 0 and 365")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.SaveSettings(ctx, settings, s.now())
	})
	if err != nil {
		s.logger.Error("save settings failed", "owner_id", settings.OwnerID, "err", err)
		return model.AvailabilitySettings{}, storeErr("save settings", err)
	}
	s.invalidateOwner(ctx, settings.OwnerID)
	return settings, nil
}

// SetDay applies an owner override to one date and returns the resulting owner view.
func (s *Service) SetDay(ctx context.Context, ownerID, date string, o DayOverride) (model.DayView, error) {
	if !timeutil.ValidDate(date) {
		return model.DayView{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	if o.IsAvailable == nil && o.Windows == nil {
		return model.DayView{}, apperr.Validation("is_available or windows is required")
	}
	windows, err := validateWindows(ownerID, date, o.Windows)
	if err != nil {
		return model.DayView{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if o.IsAvailable != nil {
			exc := model.DateException{OwnerID: ownerID, Date: date, IsAvailable: *o.IsAvailable, Reason: o.Reason}
			if err := tx.SaveDateException(ctx, exc, now); err != nil {
				return err
			}
		}
		if o.Windows != nil {
			return tx.ReplaceOpenWindows(ctx, ownerID, date, windows, now)
		}
		if o.IsAvailable != nil && !*o.IsAvailable {
			return closeDay(ctx, tx, ownerID, date, now)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("set day override failed", "owner_id", ownerID, "date", date, "err", err)
		return model.DayView{}, storeErr("set day override", err)
	}
	s.invalidate(ctx, ownerID, date)
	return s.Day(ctx, ownerID, date, true)
}

// closeDay drops the unbooked windows of a date. Persisted rows outrank the
// whole-day exception, so while booked rows remain every other window of the
// day is pinned unavailable.
func closeDay(ctx context.Context, tx storage.Tx, ownerID, date string, now time.Time) error {
	if err := tx.DeleteOpenWindows(ctx, ownerID, date); err != nil {
		return err
	}
	rows, err := tx.Windows(ctx, ownerID, date)
	if err != nil || len(rows) == 0 {
		return err
	}
	view, err := Compose(ctx, tx, ownerID, date, now)
	if err != nil {
		return err
	}
	pinned := make([]model.PersistedWindow, 0, len(view.TimeSlots))
	for _, w := range view.TimeSlots {
		if w.IsBooked {
			continue
		}
		pinned = append(pinned, model.PersistedWindow{
			OwnerID: ownerID, Date: date, StartTime: w.StartTime, EndTime: w.EndTime, IsAvailable: false,
		})
	}
	return tx.ReplaceOpenWindows(ctx, ownerID, date, pinned, now)
}

// ResetDay removes the date exception and every unbooked explicit window of
// the date, returning it to the weekly rule.
func (s *Service) ResetDay(ctx context.Context, ownerID, date string) (model.DayView, error) {
	if !timeutil.ValidDate(date) {
		return model.DayView{}, apperr.Validation("date must be YYYY-MM-DD")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteDateException(ctx, ownerID, date); err != nil {
			return err
		}
		return tx.DeleteOpenWindows(ctx, ownerID, date)
	})
	if err != nil {
		s.logger.Error("reset day failed", "owner_id", ownerID, "date", date, "err", err)
		return model.DayView{}, storeErr("reset day", err)
	}
	s.invalidate(ctx, ownerID, date)
	return s.Day(ctx, ownerID, date, true)
}

func validateWindows(ownerID, date string, specs []WindowSpec) ([]model.PersistedWindow, error) {
	type span struct{ start, end int }
	spans := make([]span, 0, len(specs))
	out := make([]model.PersistedWindow, 0, len(specs))
	for _, w := range specs {
		start, err := timeutil.ParseClock(w.StartTime)
		if err != nil {
			return nil, apperr.Validation("window start_time must be HH:MM")
		}
		end, err := timeutil.ParseDayEnd(w.EndTime)
		if err != nil {
			return nil, apperr.Validation("window end_time must be HH:MM")
		}
		if end <= start {
			return nil, apperr.Validation("window end_time must be after start_time")
		}
		spans = append(spans, span{start, end})
		out = append(out, model.PersistedWindow{
			OwnerID: ownerID, Date: date, StartTime: w.StartTime, EndTime: w.EndTime, IsAvailable: w.IsAvailable,
		})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return nil, apperr.Validation("windows must not overlap")
		}
	}
	return out, nil
}
