package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
	"go.opentelemetry.io/otel/attribute"
)

type TransitionInput struct {
	CallerID  string
	BookingID string
	Status    string
}

// Transition moves a booking to a new status and keeps its window in step.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (b model.Booking, err error) {
	in.BookingID = strings.TrimSpace(in.BookingID)
	to, err := parseTransitionInput(in)
	if err != nil {
		metrics.IncBookingTransition(in.Status, outcome(err))
		return model.Booking{}, err
	}
	defer func() { metrics.IncBookingTransition(string(to), outcome(err)) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.startSpan(ctx, "booking.Transition",
		attribute.String("booking_id", in.BookingID),
		attribute.String("status", string(to)),
	)
	defer span.End()

	now, occurred := s.stamp()
	var from model.Status
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := s.owned(ctx, tx, in.CallerID, in.BookingID)
		if err != nil {
			return err
		}
		from = cur.Status
		if !from.CanTransition(to) {
			return apperr.Guard(fmt.Sprintf("invalid status transition from %s to %s", from, to))
		}
		if err := s.checkTimeGuard(cur, to, now); err != nil {
			return err
		}

		changed, err := tx.UpdateBookingStatus(ctx, cur.ID, from, to, now)
		if err != nil {
			return err
		}
		if !changed {
			return apperr.Conflict("booking was modified concurrently")
		}

		switch to {
		case model.StatusConfirmed:
			if err := tx.MarkWindowBooked(ctx, cur.Window(), now); err != nil {
				return err
			}
		case model.StatusCancelled:
			if err := tx.ReleaseWindow(ctx, cur.Window(), now); err != nil {
				return err
			}
		}

		b = cur
		b.Status = to
		b.UpdatedAt = now
		evt, err := outbox.BookingEvent(outbox.EventBookingStatusChanged, b, from, occurred)
		if err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, evt, now)
	})
	if err != nil {
		err = txErr("update booking status", err)
		s.logFailure("booking transition", in.BookingID, err, "status", string(to))
		return model.Booking{}, err
	}

	s.days.Invalidate(ctx, b.OwnerID, b.Date)
	s.logger.Info("booking status changed", "booking_id", b.ID, "owner_id", b.OwnerID, "date", b.Date,
		"from", string(from), "to", string(to))
	return b, nil
}

// Delete removes a booking in any status and frees its window.
func (s *Service) Delete(ctx context.Context, callerID, bookingID string) (model.Booking, error) {
	if callerID == "" {
		return model.Booking{}, apperr.Unauthorized("authentication required")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return model.Booking{}, apperr.Validation("booking_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.startSpan(ctx, "booking.Delete", attribute.String("booking_id", bookingID))
	defer span.End()

	now, occurred := s.stamp()
	var b model.Booking
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		b, err = s.owned(ctx, tx, callerID, bookingID)
		if err != nil {
			return err
		}
		return s.deleteAndRelease(ctx, tx, b, now, occurred)
	})
	if err != nil {
		err = txErr("delete booking", err)
		s.logFailure("booking delete", bookingID, err)
		return model.Booking{}, err
	}

	s.days.Invalidate(ctx, b.OwnerID, b.Date)
	s.logger.Info("booking deleted", "booking_id", b.ID, "owner_id", b.OwnerID, "date", b.Date)
	return b, nil
}

type RescheduleInput struct {
	CallerID   string
	BookingID  string
	TimeSlotID string
	Date       string
	StartTime  string
	EndTime    string
}

// Reschedule replaces an active booking with a new pending one on another
// window. The old booking is deleted and the new window claimed in the same
// transaction, so a failed claim leaves the original booking in place.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (b model.Booking, err error) {
	defer func() { s.recordCreate(err) }()

	if in.CallerID == "" {
		return model.Booking{}, apperr.Unauthorized("authentication required")
	}
	in.BookingID = strings.TrimSpace(in.BookingID)
	if in.BookingID == "" {
		return model.Booking{}, apperr.Validation("booking_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key, err := s.resolveWindow(ctx, CreateInput{
		CallerID:   in.CallerID,
		OwnerID:    in.CallerID,
		TimeSlotID: in.TimeSlotID,
		Date:       in.Date,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
	})
	if err != nil {
		return model.Booking{}, err
	}

	ctx, span := s.startSpan(ctx, "booking.Reschedule",
		attribute.String("booking_id", in.BookingID),
		attribute.String("date", key.Date),
		attribute.String("window", key.StartTime+"-"+key.EndTime),
	)
	defer span.End()

	now, occurred := s.stamp()
	var old model.Booking
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		old, err = s.owned(ctx, tx, in.CallerID, in.BookingID)
		if err != nil {
			return err
		}
		if !old.Status.Active() {
			return apperr.Guard(fmt.Sprintf("cannot reschedule a %s booking", old.Status))
		}
		if old.Window() == key {
			return apperr.Validation("new time slot is the same as the current one")
		}
		if err := s.deleteAndRelease(ctx, tx, old, now, occurred); err != nil {
			return err
		}
		b, err = s.claimAndInsert(ctx, tx, key, client{
			name:  old.ClientName,
			email: old.ClientEmail,
			phone: old.ClientPhone,
			notes: old.Notes,
		}, now, occurred)
		return err
	})
	if err != nil {
		err = txErr("reschedule booking", err)
		s.logFailure("booking reschedule", in.BookingID, err, "date", key.Date, "start_time", key.StartTime)
		return model.Booking{}, err
	}

	s.days.Invalidate(ctx, old.OwnerID, old.Date)
	if key.Date != old.Date {
		s.days.Invalidate(ctx, key.OwnerID, key.Date)
	}
	s.logger.Info("booking rescheduled", "old_booking_id", old.ID, "booking_id", b.ID, "owner_id", b.OwnerID,
		"date", b.Date, "start_time", b.StartTime, "end_time", b.EndTime)
	return b, nil
}

// owned loads a booking inside tx and checks that the caller owns it.
func (s *Service) owned(ctx context.Context, tx storage.Tx, callerID, bookingID string) (model.Booking, error) {
	b, err := tx.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, loadErr(err)
	}
	if b.OwnerID != callerID {
		return model.Booking{}, apperr.Forbidden("booking belongs to another owner")
	}
	return b, nil
}

// deleteAndRelease removes b and frees its window unless another active
// booking already holds it, which happens when a cancelled booking is deleted
// after the window was booked again.
func (s *Service) deleteAndRelease(ctx context.Context, tx storage.Tx, b model.Booking, now time.Time, occurred string) error {
	if err := tx.DeleteBooking(ctx, b.ID); err != nil {
		return err
	}
	others, err := tx.ActiveBookings(ctx, b.OwnerID, b.Date)
	if err != nil {
		return err
	}
	held := false
	for _, o := range others {
		if o.Window() == b.Window() {
			held = true
			break
		}
	}
	if !held {
		if err := tx.ReleaseWindow(ctx, b.Window(), now); err != nil {
			return err
		}
	}
	evt, err := outbox.BookingEvent(outbox.EventBookingDeleted, b, "", occurred)
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, evt, now)
}

func (s *Service) checkTimeGuard(b model.Booking, to model.Status, now time.Time) error {
	if to != model.StatusNoShow && to != model.StatusCompleted {
		return nil
	}
	start, err := timeutil.At(b.Date, b.StartTime, s.loc)
	if err != nil {
		return apperr.Internal("parse booking start", err)
	}
	switch to {
	case model.StatusNoShow:
		if now.Before(start.Add(s.grace)) {
			return apperr.Guard("cannot mark no-show until grace period elapses")
		}
	case model.StatusCompleted:
		if now.Before(start) {
			return apperr.Guard("cannot mark completed before the appointment starts")
		}
	}
	return nil
}

func parseTransitionInput(in TransitionInput) (model.Status, error) {
	if in.CallerID == "" {
		return "", apperr.Unauthorized("authentication required")
	}
	if in.BookingID == "" {
		return "", apperr.Validation("booking_id is required")
	}
	to, err := model.ParseStatus(strings.TrimSpace(in.Status))
	if err != nil {
		return "", apperr.Validation("status must be one of pending, confirmed, cancelled, completed, no-show")
	}
	return to, nil
}

func (s *Service) logFailure(msg, bookingID string, err error, attrs ...any) {
	attrs = append([]any{"booking_id", bookingID, "err", err}, attrs...)
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error(msg+" failed", attrs...)
		return
	}
	s.logger.Info(msg+" rejected", attrs...)
}
