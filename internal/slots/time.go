package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"televet/internal/model"
)

// DateLayout is the layout of schedule date keys.
const DateLayout = "2006-01-02"

// Clock is a parsed wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// String renders the canonical zero-padded "HH:MM" form.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseTime parses "HH:MM". A missing minute part is read as zero.
// Empty or malformed input yields ok=false instead of an error.
func ParseTime(s string) (Clock, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Clock{}, false
	}

	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return Clock{}, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, false
	}

	minute := 0
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return Clock{}, false
		}
	}

	return Clock{Hour: hour, Minute: minute}, true
}

// Minutes converts "HH:MM" to minutes since midnight, treating invalid input as 0.
func Minutes(s string) int {
	c, ok := ParseTime(s)
	if !ok {
		return 0
	}
	return c.Minutes()
}

// Overlaps reports whether [start1,end1) and [start2,end2) intersect.
// Zero-padded "HH:MM" strings compare correctly as strings, and
// back-to-back intervals do not overlap.
func Overlaps(start1, end1, start2, end2 string) bool {
	return start1 < end2 && start2 < end1
}

// SlotsOverlap is Overlaps for two schedule slots.
func SlotsOverlap(a, b model.ScheduleSlot) bool {
	return Overlaps(a.Start, a.End, b.Start, b.End)
}

// DateKey formats t as "YYYY-MM-DD" in t's own location. Keys are always
// local calendar dates; callers pass times already in the vet's zone.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a date key as local midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", key, err)
	}
	return t, nil
}

// Midnight truncates t to the start of its calendar day in its location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DatesInRange returns every date key from start to end inclusive, ascending.
func DatesInRange(start, end string, loc *time.Location) ([]string, error) {
	from, err := ParseDateKey(start, loc)
	if err != nil {
		return nil, err
	}
	to, err := ParseDateKey(end, loc)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	var dates []string
	for cursor := from; !cursor.After(to); cursor = cursor.AddDate(0, 0, 1) {
		dates = append(dates, DateKey(cursor))
	}
	return dates, nil
}

var dayNames = [...]model.Weekday{
	time.Sunday:    model.Sunday,
	time.Monday:    model.Monday,
	time.Tuesday:   model.Tuesday,
	time.Wednesday: model.Wednesday,
	time.Thursday:  model.Thursday,
	time.Friday:    model.Friday,
	time.Saturday:  model.Saturday,
}

// WeekdayOf maps a date to its template weekday name.
func WeekdayOf(t time.Time) model.Weekday {
	return dayNames[t.Weekday()]
}

// WeekRange returns the Sunday-to-Saturday week containing ref, shifted by
// weeks (1 for next week).
func WeekRange(ref time.Time, weeks int) (start, end string) {
	first := Midnight(ref).AddDate(0, 0, -int(ref.Weekday())+7*weeks)
	return DateKey(first), DateKey(first.AddDate(0, 0, 6))
}
