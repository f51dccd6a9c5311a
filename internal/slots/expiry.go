package slots

import (
	"errors"
	"time"

	"televet/internal/model"
)

// ErrInvalidRange is returned when a start date falls after the end date.
var ErrInvalidRange = errors.New("start date must be before or equal to end date")

// ComputeExpiry returns the last instant (ms since epoch) at which a slot on
// date starting at start may still be booked: local midnight of date plus
// the start offset minus minAdvance minutes. An unparsable date yields 0.
func ComputeExpiry(date, start string, minAdvance int, loc *time.Location) int64 {
	day, err := ParseDateKey(date, loc)
	if err != nil {
		return 0
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), 0, Minutes(start)-minAdvance, 0, 0, day.Location())
	return at.UnixMilli()
}

// Classify judges the display state of an existing slot at now. Booked slots
// never expire and an expired status is sticky.
func Classify(slot model.ScheduleSlot, now time.Time) model.SlotStatus {
	switch slot.Status {
	case model.StatusBooked:
		return model.StatusBooked
	case model.StatusExpired:
		return model.StatusExpired
	}
	if slot.ExpiryTime != 0 && now.UnixMilli() >= slot.ExpiryTime {
		return model.StatusExpired
	}
	return model.StatusAvailable
}

// IsExpired reports whether Classify would return expired.
func IsExpired(slot model.ScheduleSlot, now time.Time) bool {
	return Classify(slot, now) == model.StatusExpired
}

// IsPastCutoff reports whether a slot would already be too close to now to
// be offered: the date is before today, or it is today and fewer than
// minAdvance minutes remain before the start.
func IsPastCutoff(date, start string, minAdvance int, now time.Time) bool {
	today := DateKey(now)
	if date < today {
		return true
	}
	if date > today {
		return false
	}
	remaining := Minutes(start) - (now.Hour()*60 + now.Minute())
	return remaining < minAdvance
}

// EnsureExpiry stamps an expiry on a slot that has none.
func EnsureExpiry(slot model.ScheduleSlot, date string, minAdvance int, loc *time.Location) model.ScheduleSlot {
	if slot.ExpiryTime != 0 {
		return slot
	}
	slot.ExpiryTime = ComputeExpiry(date, slot.Start, minAdvance, loc)
	return slot
}

// EnsureDayExpiry applies EnsureExpiry to every unbooked slot of day.
func EnsureDayExpiry(day *model.DaySchedule, minAdvance int, loc *time.Location) {
	for i, s := range day.Slots {
		if s.IsBooked() {
			continue
		}
		day.Slots[i] = EnsureExpiry(s, day.Date, minAdvance, loc)
	}
}

// FromTemplate derives the available slots a template offers on date, each
// stamped with its expiry. Entries with a missing or inverted range are
// ignored.
func FromTemplate(tpl *model.AvailabilityTemplate, date time.Time, minAdvance int) []model.ScheduleSlot {
	key := DateKey(date)
	source := tpl.SlotsFor(WeekdayOf(date))

	out := make([]model.ScheduleSlot, 0, len(source))
	for _, s := range source {
		if s.Start == "" || s.End == "" || s.Start >= s.End {
			continue
		}
		out = append(out, model.ScheduleSlot{
			Start:      s.Start,
			End:        s.End,
			Status:     model.StatusAvailable,
			ExpiryTime: ComputeExpiry(key, s.Start, minAdvance, date.Location()),
		})
	}
	return out
}

// DropPastCutoff removes slots that IsPastCutoff rejects at now.
func DropPastCutoff(in []model.ScheduleSlot, date string, minAdvance int, now time.Time) []model.ScheduleSlot {
	out := in[:0:0]
	for _, s := range in {
		if IsPastCutoff(date, s.Start, minAdvance, now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NextExpiry returns the soonest expiry after now among available slots of
// unblocked schedules.
func NextExpiry(schedules []model.DaySchedule, now time.Time) (time.Time, bool) {
	nowMs := now.UnixMilli()
	var next int64
	for _, day := range schedules {
		if day.Blocked {
			continue
		}
		for _, s := range day.Slots {
			if s.Status != model.StatusAvailable || s.ExpiryTime == 0 || s.ExpiryTime <= nowMs {
				continue
			}
			if next == 0 || s.ExpiryTime < next {
				next = s.ExpiryTime
			}
		}
	}
	if next == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(next).In(now.Location()), true
}
