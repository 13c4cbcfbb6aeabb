package model

const (
	DefaultSlotDurationMinutes  = 60
	DefaultBreakDurationMinutes = 0
	DefaultAdvanceBookingDays   = 30
)

func DefaultSettings(ownerID string) AvailabilitySettings {
	return AvailabilitySettings{
		OwnerID:              ownerID,
		SlotDurationMinutes:  DefaultSlotDurationMinutes,
		BreakDurationMinutes: DefaultBreakDurationMinutes,
		AdvanceBookingDays:   DefaultAdvanceBookingDays,
	}
}

// DefaultWorkingHours is Monday to Friday 09:00-17:00 with the weekend off.
func DefaultWorkingHours(ownerID string) []WorkingHourRule {
	rules := make([]WorkingHourRule, 0, 7)
	for day := 0; day < 7; day++ {
		rules = append(rules, WorkingHourRule{
			OwnerID:   ownerID,
			DayOfWeek: day,
			StartTime: "09:00",
			EndTime:   "17:00",
			IsWorking: day >= 1 && day <= 5,
		})
	}
	return rules
}
