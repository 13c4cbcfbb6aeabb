package booking

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/apperr"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxNameLen  = 200
	maxNotesLen = 2000
	maxPhoneLen = 32
)

// CreateInput selects a window either by TimeSlotID or by OwnerID, Date,
// StartTime and EndTime. OwnerID falls back to the caller when omitted.
type CreateInput struct {
	CallerID    string
	OwnerID     string
	TimeSlotID  string
	Date        string
	StartTime   string
	EndTime     string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Notes       string
}

type client struct {
	name, email, phone, notes string
}

// Create books a window. The window check, the claim, the booking insert and
// the outbox event commit together or not at all; of any number of racing
// calls for one window exactly one succeeds and the rest get Conflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (b model.Booking, err error) {
	defer func() { s.recordCreate(err) }()

	c, err := validateClient(in)
	if err != nil {
		return model.Booking{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key, err := s.resolveWindow(ctx, in)
	if err != nil {
		return model.Booking{}, err
	}

	ctx, span := s.startSpan(ctx, "booking.Create",
		attribute.String("owner_id", key.OwnerID),
		attribute.String("date", key.Date),
		attribute.String("window", key.StartTime+"-"+key.EndTime),
	)
	defer span.End()

	now, occurred := s.stamp()
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		b, err = s.claimAndInsert(ctx, tx, key, c, now, occurred)
		return err
	})
	if err != nil {
		err = txErr("create booking", err)
		s.logCreateFailure(key, err)
		return model.Booking{}, err
	}

	s.days.Invalidate(ctx, key.OwnerID, key.Date)
	s.logger.Info("booking created", "booking_id", b.ID, "owner_id", key.OwnerID, "date", key.Date,
		"start_time", key.StartTime, "end_time", key.EndTime)
	return b, nil
}

// claimAndInsert is the atomic unit shared by Create and Reschedule. It must run
// inside tx.
func (s *Service) claimAndInsert(ctx context.Context, tx storage.Tx, key model.WindowKey, c client, now time.Time, occurred string) (model.Booking, error) {
	settings, err := tx.Settings(ctx, key.OwnerID, now)
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.checkBookable(key, settings, now); err != nil {
		return model.Booking{}, err
	}

	view, err := availability.Compose(ctx, tx, key.OwnerID, key.Date, now)
	if err != nil {
		return model.Booking{}, err
	}
	w, ok := slots.Find(view.TimeSlots, key.StartTime, key.EndTime)
	if !ok {
		return model.Booking{}, apperr.NotFound("time slot not found")
	}
	if w.IsBooked || !w.IsAvailable {
		return model.Booking{}, apperr.Conflict("time slot is already booked or unavailable")
	}

	if err := tx.EnsureWindow(ctx, model.PersistedWindow{
		OwnerID: key.OwnerID, Date: key.Date, StartTime: key.StartTime, EndTime: key.EndTime, IsAvailable: true,
	}, now); err != nil {
		return model.Booking{}, err
	}
	claimed, err := tx.ClaimWindow(ctx, key, now)
	if err != nil {
		return model.Booking{}, err
	}
	if !claimed {
		return model.Booking{}, apperr.Conflict("time slot is already booked or unavailable")
	}

	b := model.Booking{
		ID:          uuid.NewString(),
		OwnerID:     key.OwnerID,
		Date:        key.Date,
		StartTime:   key.StartTime,
		EndTime:     key.EndTime,
		ClientName:  c.name,
		ClientEmail: c.email,
		ClientPhone: c.phone,
		Notes:       c.notes,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return model.Booking{}, err
	}
	evt, err := outbox.BookingEvent(outbox.EventBookingCreated, b, "", occurred)
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.InsertOutbox(ctx, evt, now); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// checkBookable rejects windows that already started or lie beyond the
// owner's advance booking horizon.
func (s *Service) checkBookable(key model.WindowKey, settings model.AvailabilitySettings, now time.Time) error {
	start, err := timeutil.At(key.Date, key.StartTime, s.loc)
	if err != nil {
		return apperr.Validation("invalid time slot")
	}
	if !start.After(now) {
		return apperr.Validation("time slot is in the past")
	}
	today, _ := timeutil.ParseDate(timeutil.Today(now, s.loc))
	horizon := today.AddDate(0, 0, settings.AdvanceBookingDays).Format(timeutil.DateLayout)
	if key.Date > horizon {
		return apperr.Validation("date is beyond the advance booking window")
	}
	return nil
}

// resolveWindow turns the request into a window key. Persisted window ids are
// looked up; derived ids and explicit times are parsed.
func (s *Service) resolveWindow(ctx context.Context, in CreateInput) (model.WindowKey, error) {
	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" {
		ownerID = in.CallerID
	}

	slotID := strings.TrimSpace(in.TimeSlotID)
	var key model.WindowKey
	switch {
	case slotID != "" && slots.IsDerivedID(slotID):
		date, start, end, _ := slots.ParseWindowID(slotID)
		key = model.WindowKey{OwnerID: ownerID, Date: date, StartTime: start, EndTime: end}
	case slotID != "":
		w, err := s.store.Window(ctx, slotID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return model.WindowKey{}, apperr.NotFound("time slot not found")
			}
			return model.WindowKey{}, apperr.Internal("load time slot", err)
		}
		if explicit := strings.TrimSpace(in.OwnerID); explicit != "" && explicit != w.OwnerID {
			return model.WindowKey{}, apperr.NotFound("time slot not found")
		}
		return w.Key(), nil
	default:
		if in.Date == "" || in.StartTime == "" || in.EndTime == "" {
			return model.WindowKey{}, apperr.Validation("time_slot_id or date, start_time and end_time are required")
		}
		key = model.WindowKey{OwnerID: ownerID, Date: strings.TrimSpace(in.Date), StartTime: strings.TrimSpace(in.StartTime), EndTime: strings.TrimSpace(in.EndTime)}
	}

	if key.OwnerID == "" {
		return model.WindowKey{}, apperr.Validation("owner_id is required")
	}
	return key, validateKey(key)
}

func validateKey(key model.WindowKey) error {
	if !timeutil.ValidDate(key.Date) {
		return apperr.Validation("date must be YYYY-MM-DD")
	}
	start, err := timeutil.ParseClock(key.StartTime)
	if err != nil {
		return apperr.Validation("start_time must be HH:MM")
	}
	end, err := timeutil.ParseDayEnd(key.EndTime)
	if err != nil {
		return apperr.Validation("end_time must be HH:MM")
	}
	if end <= start {
		return apperr.Validation("end_time must be after start_time")
	}
	return nil
}

func validateClient(in CreateInput) (client, error) {
	c := client{
		name:  strings.TrimSpace(in.ClientName),
		email: strings.TrimSpace(in.ClientEmail),
		phone: strings.TrimSpace(in.ClientPhone),
		notes: strings.TrimSpace(in.Notes),
	}
	switch {
	case c.name == "":
		return client{}, apperr.Validation("client_name is required")
	case utf8.RuneCountInString(c.name) > maxNameLen:
		return client{}, apperr.Validation("client_name is too long")
	case c.email == "":
		return client{}, apperr.Validation("client_email is required")
	case utf8.RuneCountInString(c.notes) > maxNotesLen:
		return client{}, apperr.Validation("notes is too long")
	}
	addr, err := mail.ParseAddress(c.email)
	if err != nil || addr.Address != c.email {
		return client{}, apperr.Validation("client_email is not a valid address")
	}
	if c.phone != "" && !validPhone(c.phone) {
		return client{}, apperr.Validation("client_phone is not a valid phone number")
	}
	return c, nil
}

func validPhone(p string) bool {
	if len(p) > maxPhoneLen {
		return false
	}
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 5
}

func (s *Service) logCreateFailure(key model.WindowKey, err error) {
	attrs := []any{"owner_id", key.OwnerID, "date", key.Date, "start_time", key.StartTime, "end_time", key.EndTime, "err", err}
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		s.logger.Error("booking create failed", attrs...)
	default:
		s.logger.Info("booking create rejected", attrs...)
	}
}
