package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"televet/internal/slots"
)

var (
	ErrHardConflict       = errors.New("booked appointments conflict with the template")
	ErrDecisionRequired   = errors.New("conflicting dates need a replace or skip decision")
	ErrStartInPast        = errors.New("start date cannot be in the past")
	ErrRangeTooLong       = errors.New("date range is too long")
	ErrDateBlocked        = errors.New("date is blocked")
	ErrDateHasBookings    = errors.New("date has booked appointments")
	ErrAllSlotsPastCutoff = errors.New("all slots are within the minimum advance or in the past")
	ErrBookedSlotRemoved  = errors.New("booked slots cannot be changed or removed")
	ErrSessionClosed      = errors.New("scheduling session closed")
)

// HardConflictError lists the dates whose booked slots block an apply.
type HardConflictError struct {
	Dates []string
}

func (e *HardConflictError) Error() string {
	return fmt.Sprintf("Some conflicting time slots already have booked appointments (%s). "+
		"The template cannot be applied until those appointments are rescheduled or cancelled.", dateList(e.Dates))
}

func (e *HardConflictError) Unwrap() error { return ErrHardConflict }

// DecisionRequiredError lists soft-conflict dates that are in neither the
// replace nor the skip set.
type DecisionRequiredError struct {
	Dates []string
}

func (e *DecisionRequiredError) Error() string {
	const tail = "The conflicting slots are empty (no appointments booked)."
	if len(e.Dates) == 1 {
		return "Some template time slots conflict with existing slots on the selected date. " + tail
	}
	return fmt.Sprintf("Some template time slots conflict with existing slots on %d day(s). %s", len(e.Dates), tail)
}

func (e *DecisionRequiredError) Unwrap() error { return ErrDecisionRequired }

// CutoffError is returned by EditDay when every submitted slot was dropped
// for being too close to now.
type CutoffError struct {
	MinAdvance int
}

func (e *CutoffError) Error() string {
	window := slots.FormatMinutes(e.MinAdvance)
	return fmt.Sprintf("All slots are within the minimum advance (%s) or in the past. Add slots that are at least %s from now.", window, window)
}

func (e *CutoffError) Unwrap() error { return ErrAllSlotsPastCutoff }

// dateList renders up to three dates, or two and a remainder count.
func dateList(dates []string) string {
	show := dates
	if len(dates) > 3 {
		show = dates[:2]
	}
	labels := make([]string, len(show))
	for i, d := range show {
		labels[i] = slots.FormatDate(d)
	}
	out := strings.Join(labels, ", ")
	if len(dates) > 3 {
		out += fmt.Sprintf(" and %d more", len(dates)-2)
	}
	return out
}
