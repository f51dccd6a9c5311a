package model

const (
	DefaultMinAdvanceMinutes = 30
	MinAdvanceMinutesMin     = 1
	MinAdvanceMinutesMax     = 1440
)

// VetSchedulingSettings is the single scheduling settings document of a vet.
type VetSchedulingSettings struct {
	MinAdvanceBookingMinutes int `json:"minAdvanceBookingMinutes"`
}

// DefaultSettings returns the settings used when a vet has none stored.
func DefaultSettings() VetSchedulingSettings {
	return VetSchedulingSettings{MinAdvanceBookingMinutes: DefaultMinAdvanceMinutes}
}

// MinAdvance returns the configured window, falling back to the default
// when the stored value is missing or out of range.
func (s VetSchedulingSettings) MinAdvance() int {
	if s.MinAdvanceBookingMinutes < MinAdvanceMinutesMin || s.MinAdvanceBookingMinutes > MinAdvanceMinutesMax {
		return DefaultMinAdvanceMinutes
	}
	return s.MinAdvanceBookingMinutes
}
