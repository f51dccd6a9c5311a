package slots

import (
	"fmt"
	"time"
)

// Placeholder is shown for an empty or unreadable time.
const Placeholder = "-"

// Format12h renders "13:05" as "1:05 PM". Unparsable input is returned as is.
func Format12h(s string) string {
	c, ok := ParseTime(s)
	if !ok {
		if s == "" {
			return Placeholder
		}
		return s
	}
	return fmt.Sprintf("%s %s", formatHour(c), meridiem(c))
}

// FormatCompact renders "13:05" as "1:05" without the AM/PM suffix.
func FormatCompact(s string) string {
	c, ok := ParseTime(s)
	if !ok {
		if s == "" {
			return Placeholder
		}
		return s
	}
	return formatHour(c)
}

// FormatRange renders a slot as "9:00 AM - 9:30 AM".
func FormatRange(start, end string) string {
	return Format12h(start) + " - " + Format12h(end)
}

// FormatRangeCompact shares the AM/PM suffix when both ends fall in the same
// half of the day: "9:00-10:30 AM", otherwise "11:00 AM - 1:00 PM".
func FormatRangeCompact(start, end string) string {
	s, okStart := ParseTime(start)
	e, okEnd := ParseTime(end)
	if !okStart || !okEnd {
		return FormatCompact(start) + " - " + FormatCompact(end)
	}
	if meridiem(s) == meridiem(e) {
		return fmt.Sprintf("%s-%s %s", formatHour(s), formatHour(e), meridiem(s))
	}
	return FormatRange(start, end)
}

// FormatMinutes renders an advance window as "2 hours" or "45 minutes".
func FormatMinutes(mins int) string {
	if mins >= 60 && mins%60 == 0 {
		return plural(mins/60, "hour")
	}
	return plural(mins, "minute")
}

// FormatDate renders a date key as "Monday, March 9, 2026". Invalid keys are
// returned unchanged.
func FormatDate(key string) string {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		if key == "" {
			return Placeholder
		}
		return key
	}
	return t.Format("Monday, January 2, 2006")
}

func formatHour(c Clock) string {
	hour := c.Hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d", hour, c.Minute)
}

func meridiem(c Clock) string {
	if c.Hour < 12 {
		return "AM"
	}
	return "PM"
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
