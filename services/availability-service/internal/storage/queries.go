package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	otelx "github.com/md-rashed-zaman/apptslots/libs/otel"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
)

// dialect holds the few statements that differ between drivers.
type dialect struct {
	// lockSkipLocked is appended to the outbox batch select.
	lockSkipLocked string
}

// queries implements Reader and Tx on top of any conn.
type queries struct {
	c conn
	d dialect
}

const bookingColumns = `id, owner_id, date, start_time, end_time, client_name, client_email,
	client_phone, notes, status, created_at, updated_at`

func (q queries) Settings(ctx context.Context, ownerID string, now time.Time) (model.AvailabilitySettings, error) {
	def := model.DefaultSettings(ownerID)
	if _, err := q.c.exec(ctx, `
		INSERT INTO availability_settings
			(owner_id, slot_duration_minutes, break_duration_minutes, advance_booking_days, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID, def.SlotDurationMinutes, def.BreakDurationMinutes, def.AdvanceBookingDays, now); err != nil {
		return model.AvailabilitySettings{}, fmt.Errorf("seed settings: %w", err)
	}

	s := model.AvailabilitySettings{OwnerID: ownerID}
	err := q.c.queryRow(ctx, `
		SELECT slot_duration_minutes, break_duration_minutes, advance_booking_days
		FROM availability_settings
		WHERE owner_id = ?
	`, ownerID).Scan(&s.SlotDurationMinutes, &s.BreakDurationMinutes, &s.AdvanceBookingDays)
	if err != nil {
		return model.AvailabilitySettings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (q queries) WorkingHours(ctx context.Context, ownerID string, now time.Time) ([]model.WorkingHourRule, error) {
	rules, err := q.loadWorkingHours(ctx, ownerID)
	if err != nil || len(rules) > 0 {
		return rules, err
	}
	for _, r := range model.DefaultWorkingHours(ownerID) {
		if _, err := q.c.exec(ctx, `
			INSERT INTO working_hours (owner_id, day_of_week, start_time, end_time, is_working, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, day_of_week) DO NOTHING
		`, ownerID, r.DayOfWeek, r.StartTime, r.EndTime, r.IsWorking, now); err != nil {
			return nil, fmt.Errorf("seed working hours: %w", err)
		}
	}
	return q.loadWorkingHours(ctx, ownerID)
}

func (q queries) loadWorkingHours(ctx context.Context, ownerID string) ([]model.WorkingHourRule, error) {
	rs, err := q.c.query(ctx, `
		SELECT day_of_week, start_time, end_time, is_working
		FROM working_hours
		WHERE owner_id = ?
		ORDER BY day_of_week
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	defer rs.Close()

	var rules []model.WorkingHourRule
	for rs.Next() {
		r := model.WorkingHourRule{OwnerID: ownerID}
		if err := rs.Scan(&r.DayOfWeek, &r.StartTime, &r.EndTime, &r.IsWorking); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rs.Err()
}

func (q queries) DateException(ctx context.Context, ownerID, date string) (*model.DateException, error) {
	e := model.DateException{OwnerID: ownerID, Date: date}
	err := q.c.queryRow(ctx, `
		SELECT is_available, reason
		FROM date_exceptions
		WHERE owner_id = ? AND date = ?
	`, ownerID, date).Scan(&e.IsAvailable, &e.Reason)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load date exception: %w", err)
	}
	return &e, nil
}

func (q queries) Windows(ctx context.Context, ownerID, date string) ([]model.PersistedWindow, error) {
	rs, err := q.c.query(ctx, `
		SELECT id, owner_id, date, start_time, end_time, is_available, is_booked
		FROM time_slots
		WHERE owner_id = ? AND date = ?
		ORDER BY start_time, end_time
	`, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	defer rs.Close()

	var out []model.PersistedWindow
	for rs.Next() {
		var w model.PersistedWindow
		if err := rs.Scan(&w.ID, &w.OwnerID, &w.Date, &w.StartTime, &w.EndTime, &w.IsAvailable, &w.IsBooked); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rs.Err()
}

func (q queries) Window(ctx context.Context, id string) (model.PersistedWindow, error) {
	var w model.PersistedWindow
	err := q.c.queryRow(ctx, `
		SELECT id, owner_id, date, start_time, end_time, is_available, is_booked
		FROM time_slots
		WHERE id = ?
	`, id).Scan(&w.ID, &w.OwnerID, &w.Date, &w.StartTime, &w.EndTime, &w.IsAvailable, &w.IsBooked)
	if err != nil {
		return model.PersistedWindow{}, err
	}
	return w, nil
}

func (q queries) ActiveBookings(ctx context.Context, ownerID, date string) ([]model.Booking, error) {
	return q.selectBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = ? AND date = ? AND status IN (?, ?)
		ORDER BY start_time
	`, ownerID, date, string(model.StatusPending), string(model.StatusConfirmed))
}

func (q queries) Booking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := scanBooking(q.c.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id), &b)
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (q queries) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{f.OwnerID}
	)
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	return q.selectBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date, start_time
		LIMIT ?
	`, args...)
}

func (q queries) selectBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rs, err := q.c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	defer rs.Close()

	var out []model.Booking
	for rs.Next() {
		var b model.Booking
		if err := scanBooking(rs, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rs.Err()
}

func scanBooking(r row, b *model.Booking) error {
	var status string
	if err := r.Scan(&b.ID, &b.OwnerID, &b.Date, &b.StartTime, &b.EndTime, &b.ClientName, &b.ClientEmail,
		&b.ClientPhone, &b.Notes, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	b.Status = model.Status(status)
	return nil
}

func (q queries) EnsureWindow(ctx context.Context, w model.PersistedWindow, now time.Time) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := q.c.exec(ctx, `
		INSERT INTO time_slots (id, owner_id, date, start_time, end_time, is_available, is_booked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, date, start_time, end_time) DO NOTHING
	`, w.ID, w.OwnerID, w.Date, w.StartTime, w.EndTime, w.IsAvailable, w.IsBooked, now)
	if err != nil {
		return fmt.Errorf("ensure window: %w", err)
	}
	return nil
}

func (q queries) ClaimWindow(ctx context.Context, key model.WindowKey, now time.Time) (bool, error) {
	n, err := q.c.exec(ctx, `
		UPDATE time_slots
		SET is_booked = ?, updated_at = ?
		WHERE owner_id = ? AND date = ? AND start_time = ? AND end_time = ?
			AND is_booked = ? AND is_available = ?
	`, true, now, key.OwnerID, key.Date, key.StartTime, key.EndTime, false, true)
	if err != nil {
		return false, fmt.Errorf("claim window: %w", err)
	}
	return n == 1, nil
}

func (q queries) MarkWindowBooked(ctx context.Context, key model.WindowKey, now time.Time) error {
	_, err := q.c.exec(ctx, `
		UPDATE time_slots
		SET is_booked = ?, updated_at = ?
		WHERE owner_id = ? AND date = ? AND start_time = ? AND end_time = ?
	`, true, now, key.OwnerID, key.Date, key.StartTime, key.EndTime)
	if err != nil {
		return fmt.Errorf("mark window booked: %w", err)
	}
	return nil
}

// ReleaseWindow unbooks the window. It reopens only if the date is not closed.
func (q queries) ReleaseWindow(ctx context.Context, key model.WindowKey, now time.Time) error {
	_, err := q.c.exec(ctx, `
		UPDATE time_slots
		SET is_booked = ?, updated_at = ?,
			is_available = NOT EXISTS (
				SELECT 1 FROM date_exceptions e
				WHERE e.owner_id = time_slots.owner_id AND e.date = time_slots.date AND e.is_available = ?
			)
		WHERE owner_id = ? AND date = ? AND start_time = ? AND end_time = ?
	`, false, now, false, key.OwnerID, key.Date, key.StartTime, key.EndTime)
	if err != nil {
		return fmt.Errorf("release window: %w", err)
	}
	return nil
}

func (q queries) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := q.c.exec(ctx, `
		INSERT INTO bookings
			(id, owner_id, date, start_time, end_time, client_name, client_email, client_phone, notes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.OwnerID, b.Date, b.StartTime, b.EndTime, b.ClientName, b.ClientEmail, b.ClientPhone, b.Notes,
		string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (q queries) UpdateBookingStatus(ctx context.Context, id string, from, to model.Status, now time.Time) (bool, error) {
	n, err := q.c.exec(ctx, `
		UPDATE bookings
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	return n == 1, nil
}

func (q queries) DeleteBooking(ctx context.Context, id string) error {
	n, err := q.c.exec(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) ReplaceWorkingHours(ctx context.Context, ownerID string, rules []model.WorkingHourRule, now time.Time) error {
	if _, err := q.c.exec(ctx, `DELETE FROM working_hours WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear working hours: %w", err)
	}
	for _, r := range rules {
		if _, err := q.c.exec(ctx, `
			INSERT INTO working_hours (owner_id, day_of_week, start_time, end_time, is_working, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ownerID, r.DayOfWeek, r.StartTime, r.EndTime, r.IsWorking, now); err != nil {
			return fmt.Errorf("insert working hours for day %d: %w", r.DayOfWeek, err)
		}
	}
	return nil
}

func (q queries) SaveSettings(ctx context.Context, s model.AvailabilitySettings, now time.Time) error {
	_, err := q.c.exec(ctx, `
		INSERT INTO availability_settings
			(owner_id, slot_duration_minutes, break_duration_minutes, advance_booking_days, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			slot_duration_minutes = excluded.slot_duration_minutes,
			break_duration_minutes = excluded.break_duration_minutes,
			advance_booking_days = excluded.advance_booking_days,
			updated_at = excluded.updated_at
	`, s.OwnerID, s.SlotDurationMinutes, s.BreakDurationMinutes, s.AdvanceBookingDays, now)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (q queries) SaveDateException(ctx context.Context, e model.DateException, now time.Time) error {
	_, err := q.c.exec(ctx, `
		INSERT INTO date_exceptions (owner_id, date, is_available, reason, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, date) DO UPDATE SET
			is_available = excluded.is_available,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`, e.OwnerID, e.Date, e.IsAvailable, e.Reason, now)
	if err != nil {
		return fmt.Errorf("save date exception: %w", err)
	}
	return nil
}

func (q queries) DeleteDateException(ctx context.Context, ownerID, date string) error {
	if _, err := q.c.exec(ctx, `DELETE FROM date_exceptions WHERE owner_id = ? AND date = ?`, ownerID, date); err != nil {
		return fmt.Errorf("delete date exception: %w", err)
	}
	return nil
}

func (q queries) ReplaceOpenWindows(ctx context.Context, ownerID, date string, ws []model.PersistedWindow, now time.Time) error {
	if err := q.DeleteOpenWindows(ctx, ownerID, date); err != nil {
		return err
	}
	for _, w := range ws {
		id := w.ID
		if id == "" {
			id = uuid.NewString()
		}
		// Booked rows survive the delete above and keep their flags.
		if _, err := q.c.exec(ctx, `
			INSERT INTO time_slots (id, owner_id, date, start_time, end_time, is_available, is_booked, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, date, start_time, end_time) DO NOTHING
		`, id, ownerID, date, w.StartTime, w.EndTime, w.IsAvailable, false, now); err != nil {
			return fmt.Errorf("insert window %s-%s: %w", w.StartTime, w.EndTime, err)
		}
	}
	return nil
}

func (q queries) DeleteOpenWindows(ctx context.Context, ownerID, date string) error {
	if _, err := q.c.exec(ctx, `
		DELETE FROM time_slots
		WHERE owner_id = ? AND date = ? AND is_booked = ?
	`, ownerID, date, false); err != nil {
		return fmt.Errorf("delete open windows: %w", err)
	}
	return nil
}

func (q queries) InsertOutbox(ctx context.Context, evt OutboxEvent, now time.Time) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := q.c.exec(ctx, `
		INSERT INTO outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate, now)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (q queries) FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rs, err := q.c.query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?
	`+q.d.lockSkipLocked, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rs.Close()

	var out []OutboxRecord
	for rs.Next() {
		var r OutboxRecord
		if err := rs.Scan(&r.ID, &r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload,
			&r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func (q queries) MarkPublished(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox_events SET published_at = ? WHERE id IN (?)`, now, ids)
	if err != nil {
		return err
	}
	if _, err := q.c.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
