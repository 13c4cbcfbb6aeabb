package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
)

// Event types double as Kafka topic names.
const (
	EventBookingCreated       = "booking.created.v1"
	EventBookingStatusChanged = "booking.status_changed.v1"
	EventBookingDeleted       = "booking.deleted.v1"

	aggregateBooking = "booking"
)

// BookingPayload is the event body. Client contact data stays out of events;
// consumers that need it look the booking up by id.
type BookingPayload struct {
	BookingID      string `json:"booking_id"`
	OwnerID        string `json:"owner_id"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// BookingEvent builds the outbox row for a booking change. previous is empty
// except for status changes.
func BookingEvent(eventType string, b model.Booking, previous model.Status, occurredAt string) (storage.OutboxEvent, error) {
	payload, err := json.Marshal(BookingPayload{
		BookingID:      b.ID,
		OwnerID:        b.OwnerID,
		Date:           b.Date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		OccurredAt:     occurredAt,
	})
	if err != nil {
		return storage.OutboxEvent{}, err
	}
	return storage.OutboxEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateBooking,
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
