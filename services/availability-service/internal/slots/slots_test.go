package slots

import (
	"testing"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monday = "2025-02-10"

func rule(start, end string) *model.WorkingHourRule {
	return &model.WorkingHourRule{OwnerID: "o1", DayOfWeek: 1, StartTime: start, EndTime: end, IsWorking: true}
}

func settings(slot, gap int) model.AvailabilitySettings {
	return model.AvailabilitySettings{OwnerID: "o1", SlotDurationMinutes: slot, BreakDurationMinutes: gap, AdvanceBookingDays: 30}
}

func TestGenerate_FullDayHourly(t *testing.T) {
	ws := Generate(monday, rule("09:00", "17:00"), settings(60, 0))
	require.Len(t, ws, 8)
	assert.Equal(t, "09:00", ws[0].StartTime)
	assert.Equal(t, "10:00", ws[0].EndTime)
	assert.Equal(t, "16:00", ws[7].StartTime)
	assert.Equal(t, "17:00", ws[7].EndTime)
	for _, w := range ws {
		assert.True(t, w.IsAvailable)
		assert.False(t, w.IsBooked)
	}
	assert.Equal(t, "2025-02-10@09:00-10:00", ws[0].ID)
}

func TestGenerate_Tiling(t *testing.T) {
	cases := []struct {
		start, end string
		slot, gap  int
	}{
		{"09:00", "17:00", 45, 15},
		{"08:30", "12:10", 25, 5},
		{"00:00", "24:00", 90, 0},
		{"13:00", "13:59", 30, 0},
		{"10:00", "11:00", 60, 30},
	}
	for _, tc := range cases {
		ws := Generate(monday, rule(tc.start, tc.end), settings(tc.slot, tc.gap))
		require.NotEmpty(t, ws, "%+v", tc)

		startMin, _ := timeutil.ParseClock(tc.start)
		endMin, err := timeutil.ParseDayEnd(tc.end)
		require.NoError(t, err)

		first, _ := timeutil.ParseClock(ws[0].StartTime)
		assert.Equal(t, startMin, first)
		for i, w := range ws {
			s, _ := timeutil.ParseClock(w.StartTime)
			e, err := timeutil.ParseDayEnd(w.EndTime)
			require.NoError(t, err)
			assert.Equal(t, tc.slot, e-s)
			assert.LessOrEqual(t, e, endMin)
			if i > 0 {
				prevEnd, _ := timeutil.ParseDayEnd(ws[i-1].EndTime)
				assert.Equal(t, tc.gap, s-prevEnd)
			}
		}
		last, _ := timeutil.ParseDayEnd(ws[len(ws)-1].EndTime)
		assert.Greater(t, last+tc.gap+tc.slot, endMin, "no further window fits")
	}
}

func TestGenerate_Empty(t *testing.T) {
	assert.Empty(t, Generate(monday, nil, settings(60, 0)))
	assert.Empty(t, Generate(monday, &model.WorkingHourRule{StartTime: "09:00", EndTime: "17:00"}, settings(60, 0)))
	assert.Empty(t, Generate(monday, rule("17:00", "09:00"), settings(60, 0)))
	assert.Empty(t, Generate(monday, rule("09:00", "09:30"), settings(60, 0)))
	assert.Empty(t, Generate(monday, rule("9am", "17:00"), settings(60, 0)))
	assert.Empty(t, Generate(monday, rule("09:00", "17:00"), settings(0, 0)))
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(monday, rule("09:00", "17:00"), settings(50, 10))
	b := Generate(monday, rule("09:00", "17:00"), settings(50, 10))
	assert.Equal(t, a, b)
}

func TestWindowIDRoundTrip(t *testing.T) {
	date, start, end, err := ParseWindowID(WindowID(monday, "09:00", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{monday, "09:00", "10:00"}, []string{date, start, end})

	for _, bad := range []string{"", "2025-02-10", "2025-02-10@0900-1000", "x@09:00-10:00", "5b2f8c9e-0d4a-4c55-9a4e-3f0a6c1b2d3e"} {
		_, _, _, err := ParseWindowID(bad)
		assert.ErrorIs(t, err, ErrInvalidWindowID, bad)
	}
}

func TestApplyExceptions_OverridesMatchingWindow(t *testing.T) {
	base := Generate(monday, rule("09:00", "17:00"), settings(60, 0))
	rows := []model.PersistedWindow{{ID: "w1", OwnerID: "o1", Date: monday, StartTime: "09:00", EndTime: "10:00", IsAvailable: false}}

	out, working := ApplyExceptions(monday, base, true, rows, nil)
	assert.True(t, working)
	require.Len(t, out, 8)
	assert.Equal(t, "w1", out[0].ID)
	assert.False(t, out[0].IsAvailable)
	assert.True(t, out[1].IsAvailable)
	assert.True(t, base[0].IsAvailable, "baseline must not be mutated")
}

func TestApplyExceptions_AdHocWindowsOnDayOff(t *testing.T) {
	rows := []model.PersistedWindow{
		{ID: "b", StartTime: "18:00", EndTime: "19:00", IsAvailable: true},
		{ID: "a", StartTime: "07:00", EndTime: "08:00", IsAvailable: true},
	}
	out, working := ApplyExceptions(monday, nil, false, rows, &model.DateException{IsAvailable: false})
	assert.True(t, working, "explicit rows reclassify the day as working")
	require.Len(t, out, 2)
	assert.Equal(t, "07:00", out[0].StartTime)
	assert.Equal(t, "18:00", out[1].StartTime)
}

func TestApplyExceptions_WholeDayOff(t *testing.T) {
	base := Generate(monday, rule("09:00", "17:00"), settings(60, 0))
	out, working := ApplyExceptions(monday, base, true, nil, &model.DateException{IsAvailable: false, Reason: "holiday"})
	assert.False(t, working)
	assert.Empty(t, out)
}

func TestApplyExceptions_Idempotent(t *testing.T) {
	base := Generate(monday, rule("09:00", "12:00"), settings(60, 0))
	rows := []model.PersistedWindow{
		{ID: "w1", StartTime: "09:00", EndTime: "10:00", IsAvailable: false},
		{ID: "w2", StartTime: "13:00", EndTime: "14:00", IsAvailable: true},
		{ID: "w3", StartTime: "10:00", EndTime: "11:00", IsAvailable: true, IsBooked: true},
	}
	for _, exc := range []*model.DateException{nil, {IsAvailable: true}, {IsAvailable: false}} {
		once, w1 := ApplyExceptions(monday, base, true, rows, exc)
		twice, w2 := ApplyExceptions(monday, once, w1, rows, exc)
		assert.Equal(t, once, twice)
		assert.Equal(t, w1, w2)
	}

	once, w1 := ApplyExceptions(monday, base, true, nil, &model.DateException{IsAvailable: false})
	twice, w2 := ApplyExceptions(monday, once, w1, nil, &model.DateException{IsAvailable: false})
	assert.Equal(t, once, twice)
	assert.Equal(t, w1, w2)
}

func TestApplyBookings(t *testing.T) {
	base := Generate(monday, rule("09:00", "12:00"), settings(60, 0))
	bookings := []model.Booking{
		{ID: "b1", StartTime: "09:00", EndTime: "10:00", ClientName: "Ann", ClientEmail: "ann@example.com", Status: model.StatusPending},
		{ID: "b2", StartTime: "10:00", EndTime: "11:00", ClientName: "Bob", ClientEmail: "bob@example.com", Status: model.StatusCancelled},
		{ID: "b3", StartTime: "11:00", EndTime: "11:30", ClientName: "Cy", Status: model.StatusConfirmed},
	}

	owner := ApplyBookings(base, bookings, true)
	assert.True(t, owner[0].IsBooked)
	assert.False(t, owner[0].IsAvailable)
	require.NotNil(t, owner[0].BookingDetails)
	assert.Equal(t, "Ann", owner[0].BookingDetails.ClientName)
	assert.Equal(t, model.StatusPending, owner[0].BookingDetails.Status)

	assert.False(t, owner[1].IsBooked, "cancelled bookings do not block")
	assert.False(t, owner[2].IsBooked, "bookings match only on exact start and end")

	public := ApplyBookings(base, bookings, false)
	assert.True(t, public[0].IsBooked)
	assert.Nil(t, public[0].BookingDetails)

	stripped := StripDetails(owner)
	assert.Nil(t, stripped[0].BookingDetails)
	assert.NotNil(t, owner[0].BookingDetails)
}

func TestScenario_ExceptionMarksFirstWindowUnavailable(t *testing.T) {
	base := Generate(monday, rule("09:00", "17:00"), settings(60, 0))
	require.True(t, base[0].IsAvailable)

	out, _ := ApplyExceptions(monday, base, true, []model.PersistedWindow{{ID: "x", StartTime: "09:00", EndTime: "10:00", IsAvailable: false}}, nil)
	w, ok := Find(out, "09:00", "10:00")
	require.True(t, ok)
	assert.False(t, w.IsAvailable)
}
