package model

import (
	"fmt"
	"slices"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// transitions is the only place that decides which status changes are legal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
	StatusNoShow:    {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return st, nil
}

// Active bookings block their window.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransition(to Status) bool {
	return slices.Contains(transitions[s], to)
}

func (s Status) String() string { return string(s) }

// ActiveStatuses lists the statuses that block a window, for store queries.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed}
}
