package templates

import (
	"errors"
	"sort"
	"strings"

	"televet/internal/model"
	"televet/internal/slots"
)

// ErrInvalidTemplate is wrapped by every ValidationError.
var ErrInvalidTemplate = errors.New("invalid template")

// ValidationError describes the first problem found in a template. Day is
// set when the problem belongs to one weekday of a week template.
type ValidationError struct {
	Day     model.Weekday
	Message string
}

func (e *ValidationError) Error() string {
	if e.Day != "" {
		return e.Day.Label() + ": " + e.Message
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidTemplate
}

const (
	msgNameRequired = "Please enter a template name."
	msgBadType      = "Template type must be week or day."
	msgUnknownDay   = "Unknown day in template."
	msgBadTime      = "Enter times as HH:MM."
	msgStartEnd     = "Start time must be before end time."
	msgOverlap      = "Time slots must not overlap."
	msgDayEmpty     = "Day template must have at least one time slot."
)

// Validate checks tpl and returns a cleaned copy: names are trimmed,
// times are rewritten as zero-padded HH:MM, entries missing a start or end
// are dropped, slots are ordered by start and empty weekdays are removed.
func Validate(tpl model.AvailabilityTemplate) (model.AvailabilityTemplate, error) {
	out := model.AvailabilityTemplate{
		ID:   tpl.ID,
		Name: strings.TrimSpace(tpl.Name),
		Type: tpl.Type,
	}
	if out.Name == "" {
		return out, &ValidationError{Message: msgNameRequired}
	}

	switch tpl.Type {
	case model.TemplateWeek:
		for day := range tpl.Days {
			if !day.Valid() {
				return out, &ValidationError{Message: msgUnknownDay}
			}
		}
		out.Days = make(map[model.Weekday][]model.TemplateSlot)
		for _, day := range model.Weekdays {
			cleaned, msg := cleanSlots(tpl.Days[day])
			if msg != "" {
				return out, &ValidationError{Day: day, Message: msg}
			}
			if len(cleaned) > 0 {
				out.Days[day] = cleaned
			}
		}
	case model.TemplateDay:
		cleaned, msg := cleanSlots(tpl.Slots)
		if msg != "" {
			return out, &ValidationError{Message: msg}
		}
		if len(cleaned) == 0 {
			return out, &ValidationError{Message: msgDayEmpty}
		}
		out.Slots = cleaned
	default:
		return out, &ValidationError{Message: msgBadType}
	}
	return out, nil
}

// CheckSlots applies the template slot rules to a single list, such as the
// slots of one edited day, and returns the cleaned list.
func CheckSlots(in []model.TemplateSlot) ([]model.TemplateSlot, error) {
	out, msg := cleanSlots(in)
	if msg != "" {
		return nil, &ValidationError{Message: msg}
	}
	return out, nil
}

// cleanSlots returns the complete slots of one list, sorted, or the message
// of the first rule they break.
func cleanSlots(in []model.TemplateSlot) ([]model.TemplateSlot, string) {
	out := make([]model.TemplateSlot, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s.Start) == "" || strings.TrimSpace(s.End) == "" {
			continue
		}
		start, ok1 := slots.ParseTime(s.Start)
		end, ok2 := slots.ParseTime(s.End)
		if !ok1 || !ok2 {
			return nil, msgBadTime
		}
		if start.Minutes() >= end.Minutes() {
			return nil, msgStartEnd
		}
		out = append(out, model.TemplateSlot{Start: start.String(), End: end.String()})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			return nil, msgOverlap
		}
	}
	return out, ""
}
