package model

import "sort"

// SlotStatus is the persisted state of a schedule slot.
type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusExpired   SlotStatus = "expired"
)

// ScheduleSlot is a dated, bookable interval inside a DaySchedule.
// ExpiryTime is milliseconds since the Unix epoch; zero means unset.
type ScheduleSlot struct {
	Start         string     `json:"start"`
	End           string     `json:"end"`
	Status        SlotStatus `json:"status"`
	ExpiryTime    int64      `json:"expiryTime,omitempty"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	OwnerID       string     `json:"ownerId,omitempty"`
	OwnerName     string     `json:"ownerName,omitempty"`
	PetName       string     `json:"petName,omitempty"`
}

// IsBooked reports whether the slot holds an appointment.
func (s ScheduleSlot) IsBooked() bool {
	return s.Status == StatusBooked
}

// DaySchedule is the per-vet, per-date record keyed by "YYYY-MM-DD".
type DaySchedule struct {
	Date    string         `json:"date"`
	Blocked bool           `json:"blocked,omitempty"`
	Slots   []ScheduleSlot `json:"slots,omitempty"`
}

// HasBookings reports whether any slot on the date is booked.
func (d *DaySchedule) HasBookings() bool {
	for _, s := range d.Slots {
		if s.IsBooked() {
			return true
		}
	}
	return false
}

// FindSlot returns the index of the slot starting at start, or -1.
func (d *DaySchedule) FindSlot(start string) int {
	for i, s := range d.Slots {
		if s.Start == start {
			return i
		}
	}
	return -1
}

// Normalize migrates a record read from the store into its typed form:
// the date falls back to the storage key, missing statuses become
// available, booking fields are cleared on unbooked slots, slots sharing a
// start time collapse to the last one written and the list is ordered by
// start time.
func (d *DaySchedule) Normalize(key string) {
	if d.Date == "" {
		d.Date = key
	}
	if d.Blocked {
		d.Slots = nil
		return
	}
	if len(d.Slots) == 0 {
		d.Slots = nil
		return
	}

	index := make(map[string]int, len(d.Slots))
	out := make([]ScheduleSlot, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.Status == "" {
			s.Status = StatusAvailable
		}
		if s.Status != StatusBooked {
			s.AppointmentID, s.OwnerID, s.OwnerName, s.PetName = "", "", "", ""
		}
		if i, ok := index[s.Start]; ok {
			out[i] = s
			continue
		}
		index[s.Start] = len(out)
		out = append(out, s)
	}
	SortSlots(out)
	d.Slots = out
}

// SortSlots orders slots by start time. "HH:MM" strings sort lexically.
func SortSlots(slots []ScheduleSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start < slots[j].Start
	})
}
