package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("create booking: %w", Conflict("window is already booked"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, http.StatusConflict, KindOf(wrapped).HTTPStatus())
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.True(t, Is(wrapped, KindConflict))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindGuardViolation.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal("load bookings", errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", PublicMessage(err))
	assert.False(t, IsRetryable(err))

	timeout := Internal("load bookings", context.DeadlineExceeded)
	assert.True(t, IsRetryable(timeout))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	assert.Equal(t, "client_email is required", PublicMessage(Validation("client_email is required")))
}
