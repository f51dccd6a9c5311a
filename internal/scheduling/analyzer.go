package scheduling

import (
	"context"
	"time"

	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/slots"
)

// Conflict is how a template's slots for one date meet the stored ones.
type Conflict int

const (
	// NoConflict: nothing stored, or no overlap.
	NoConflict Conflict = iota + 1
	// SoftConflict: overlaps only with unbooked slots.
	SoftConflict
	// HardConflict: overlaps a booked slot.
	HardConflict
)

func (c Conflict) String() string {
	switch c {
	case NoConflict:
		return "case1"
	case SoftConflict:
		return "case2"
	case HardConflict:
		return "case3"
	default:
		return "unknown"
	}
}

// ClassifyConflict compares the stored slots of a date with fresh ones.
func ClassifyConflict(existing, fresh []model.ScheduleSlot) Conflict {
	if len(existing) == 0 || len(fresh) == 0 {
		return NoConflict
	}
	overlap := false
	for _, e := range existing {
		for _, n := range fresh {
			if !slots.SlotsOverlap(e, n) {
				continue
			}
			if e.IsBooked() {
				return HardConflict
			}
			overlap = true
		}
	}
	if overlap {
		return SoftConflict
	}
	return NoConflict
}

// Analysis partitions the candidate dates of a range by conflict case.
// Blocked dates and dates the template gives no slots are in none of them.
type Analysis struct {
	Case1 []string `json:"case1"`
	Case2 []string `json:"case2"`
	Case3 []string `json:"case3"`
}

// Analyzer classifies a template against a vet's stored schedule.
type Analyzer struct {
	schedules *repository.ScheduleRepository
	now       func() time.Time
}

func NewAnalyzer(schedules *repository.ScheduleRepository, now func() time.Time) *Analyzer {
	return &Analyzer{schedules: schedules, now: now}
}

// Analyze walks [start, end] in ascending order and classifies every
// candidate date.
func (a *Analyzer) Analyze(ctx context.Context, vetID string, tpl *model.AvailabilityTemplate, start, end string) (Analysis, error) {
	loc := a.now().Location()
	dates, err := slots.DatesInRange(start, end, loc)
	if err != nil {
		return Analysis{}, err
	}

	var out Analysis
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		day, ok, err := a.schedules.Get(ctx, vetID, date)
		if err != nil {
			return out, err
		}
		if ok && day.Blocked {
			continue
		}
		at, _ := slots.ParseDateKey(date, loc)
		fresh := slots.FromTemplate(tpl, at, 0)
		if len(fresh) == 0 {
			continue
		}

		switch ClassifyConflict(day.Slots, fresh) {
		case NoConflict:
			out.Case1 = append(out.Case1, date)
		case SoftConflict:
			out.Case2 = append(out.Case2, date)
		case HardConflict:
			out.Case3 = append(out.Case3, date)
		}
	}
	return out, nil
}
