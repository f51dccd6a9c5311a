package model

import "strings"

// Weekday is the lower-case English weekday name used as a template key.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists template days in editor order (Monday first).
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Label returns the capitalised day name ("Monday").
func (d Weekday) Label() string {
	if d == "" {
		return ""
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// Valid reports whether d is one of the seven known days.
func (d Weekday) Valid() bool {
	for _, w := range Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// TemplateType distinguishes weekly from single-day templates.
type TemplateType string

const (
	TemplateWeek TemplateType = "week"
	TemplateDay  TemplateType = "day"
)

// TemplateSlot is a start/end pair in 24-hour "HH:MM" form.
type TemplateSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilityTemplate is a reusable availability definition authored by a vet.
// Week templates use Days; day templates use Slots.
type AvailabilityTemplate struct {
	ID    string                     `json:"id,omitempty"`
	Name  string                     `json:"name"`
	Type  TemplateType               `json:"type"`
	Days  map[Weekday][]TemplateSlot `json:"days,omitempty"`
	Slots []TemplateSlot             `json:"slots,omitempty"`
}

// SlotsFor returns the template slots for the given weekday. Day templates
// return the same list for every weekday.
func (t *AvailabilityTemplate) SlotsFor(day Weekday) []TemplateSlot {
	switch t.Type {
	case TemplateWeek:
		return t.Days[day]
	case TemplateDay:
		return t.Slots
	default:
		return nil
	}
}

// TypeLabel is the human label used in listings.
func (t *AvailabilityTemplate) TypeLabel() string {
	if t.Type == TemplateWeek {
		return "Week template"
	}
	return "Day template"
}

// Clone returns a deep copy so callers can edit without touching the original.
func (t AvailabilityTemplate) Clone() AvailabilityTemplate {
	out := t
	if t.Days != nil {
		out.Days = make(map[Weekday][]TemplateSlot, len(t.Days))
		for day, slots := range t.Days {
			out.Days[day] = append([]TemplateSlot(nil), slots...)
		}
	}
	if t.Slots != nil {
		out.Slots = append([]TemplateSlot(nil), t.Slots...)
	}
	return out
}
