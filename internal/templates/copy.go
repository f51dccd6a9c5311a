package templates

import (
	"errors"
	"fmt"

	"televet/internal/model"
)

// ErrEmptySource is returned when a copy helper is pointed at nothing.
var ErrEmptySource = errors.New("copy source has no slots")

// CopyWeekday replaces the slots of to with a copy of the slots of from.
func CopyWeekday(tpl model.AvailabilityTemplate, from, to model.Weekday) (model.AvailabilityTemplate, error) {
	src := tpl.Days[from]
	if len(src) == 0 {
		return tpl, fmt.Errorf("%w: selected day has no slots", ErrEmptySource)
	}
	out := tpl.Clone()
	if out.Days == nil {
		out.Days = make(map[model.Weekday][]model.TemplateSlot)
	}
	out.Days[to] = append([]model.TemplateSlot(nil), src...)
	return out, nil
}

// CopyDayTemplateIntoWeekday fills one weekday of a week template from a
// day template.
func CopyDayTemplateIntoWeekday(tpl model.AvailabilityTemplate, day model.Weekday, src model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	if !hasDaySlots(src) {
		return tpl, fmt.Errorf("%w: selected template has no slots", ErrEmptySource)
	}
	out := tpl.Clone()
	if out.Days == nil {
		out.Days = make(map[model.Weekday][]model.TemplateSlot)
	}
	out.Days[day] = append([]model.TemplateSlot(nil), src.Slots...)
	return out, nil
}

// CopyDayTemplate replaces the slots of dst with those of src.
func CopyDayTemplate(dst, src model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	if !hasDaySlots(src) {
		return dst, fmt.Errorf("%w: selected template has no slots", ErrEmptySource)
	}
	out := dst.Clone()
	out.Slots = append([]model.TemplateSlot(nil), src.Slots...)
	return out, nil
}

func hasDaySlots(t model.AvailabilityTemplate) bool {
	return t.Type == model.TemplateDay && len(t.Slots) > 0
}
