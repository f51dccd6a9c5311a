package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"televet/internal/metrics"
	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/slots"
)

// SettingsReader supplies a vet's scheduling settings.
type SettingsReader interface {
	Get(ctx context.Context, vetID string) (model.VetSchedulingSettings, error)
}

// Resolution carries the vet's decisions for soft-conflict dates.
type Resolution struct {
	ReplaceDates []string `json:"replace_dates,omitempty"`
	SkipDates    []string `json:"skip_dates,omitempty"`
}

func (r Resolution) sets() (replace, skip map[string]bool) {
	replace = make(map[string]bool, len(r.ReplaceDates))
	for _, d := range r.ReplaceDates {
		replace[d] = true
	}
	skip = make(map[string]bool, len(r.SkipDates))
	for _, d := range r.SkipDates {
		skip[d] = true
	}
	return replace, skip
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

const (
	ReasonPast       = "date is in the past"
	ReasonBlocked    = "date is blocked"
	ReasonSkipped    = "skipped by request"
	ReasonNoSlots    = "template has no slots for this day"
	ReasonPastCutoff = "all template slots are past the booking cutoff"
)

// DateResult is what happened to one date of an apply.
type DateResult struct {
	Date    string  `json:"date"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Err     error   `json:"-"`
}

// ApplyReport lists every date an apply processed, in order. Processing
// stops at the first failure; dates after it are absent.
type ApplyReport struct {
	Results []DateResult `json:"results"`
	Applied int          `json:"applied"`
}

// AppliedDates returns the dates that were written.
func (r ApplyReport) AppliedDates() []string {
	var out []string
	for _, res := range r.Results {
		if res.Outcome == OutcomeApplied {
			out = append(out, res.Date)
		}
	}
	return out
}

func (r *ApplyReport) add(res DateResult) {
	r.Results = append(r.Results, res)
	if res.Outcome == OutcomeApplied {
		r.Applied++
	}
	metrics.IncApplyOutcome(string(res.Outcome))
}

// Applicator writes template-derived slots into a vet's schedule.
type Applicator struct {
	schedules *repository.ScheduleRepository
	settings  SettingsReader
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewApplicator(schedules *repository.ScheduleRepository, settings SettingsReader, now func() time.Time, logger *zerolog.Logger) *Applicator {
	return &Applicator{schedules: schedules, settings: settings, now: now, logger: logger}
}

// skipDate aborts a date's update without writing.
type skipDate struct {
	reason string
}

func (s *skipDate) Error() string { return s.reason }

// Apply processes [start, end] one date at a time in ascending order, one
// read-modify-write per date. A date that holds a booked slot overlapping
// the template at write time fails with ErrHardConflict and is left as is,
// even when it is listed for replacement. The first failure stops the loop
// and is returned wrapped with its date; earlier writes stay in place.
func (a *Applicator) Apply(ctx context.Context, vetID string, tpl *model.AvailabilityTemplate, start, end string, res Resolution) (ApplyReport, error) {
	now := a.now()
	loc := now.Location()
	today := slots.DateKey(now)

	dates, err := slots.DatesInRange(start, end, loc)
	if err != nil {
		return ApplyReport{}, err
	}
	settings, err := a.settings.Get(ctx, vetID)
	if err != nil {
		return ApplyReport{}, err
	}
	minAdvance := settings.MinAdvance()
	replace, skip := res.sets()

	var report ApplyReport
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if date < today {
			report.add(DateResult{Date: date, Outcome: OutcomeSkipped, Reason: ReasonPast})
			continue
		}
		if skip[date] {
			report.add(DateResult{Date: date, Outcome: OutcomeSkipped, Reason: ReasonSkipped})
			continue
		}

		at, _ := slots.ParseDateKey(date, loc)
		fresh := slots.FromTemplate(tpl, at, minAdvance)
		if len(fresh) == 0 {
			report.add(DateResult{Date: date, Outcome: OutcomeSkipped, Reason: ReasonNoSlots})
			continue
		}
		fresh = slots.DropPastCutoff(fresh, date, minAdvance, now)
		if len(fresh) == 0 {
			report.add(DateResult{Date: date, Outcome: OutcomeSkipped, Reason: ReasonPastCutoff})
			continue
		}

		err := a.schedules.Update(ctx, vetID, date, func(d *model.DaySchedule, _ bool) (bool, error) {
			if d.Blocked {
				return false, &skipDate{reason: ReasonBlocked}
			}
			slots.EnsureDayExpiry(d, minAdvance, loc)

			conflict := ClassifyConflict(d.Slots, fresh)
			switch {
			case conflict == HardConflict:
				return false, ErrHardConflict
			case replace[date]:
				d.Slots = append([]model.ScheduleSlot(nil), fresh...)
			case conflict == NoConflict && len(d.Slots) > 0:
				d.Slots = mergeSlots(d.Slots, fresh)
			default:
				d.Slots = append([]model.ScheduleSlot(nil), fresh...)
			}
			return false, nil
		})

		var skipped *skipDate
		switch {
		case errors.As(err, &skipped):
			report.add(DateResult{Date: date, Outcome: OutcomeSkipped, Reason: skipped.reason})
		case err != nil:
			report.add(DateResult{Date: date, Outcome: OutcomeFailed, Reason: err.Error(), Err: err})
			a.logger.Error().Err(err).Str("vet_id", vetID).Str("date", date).Int("applied", report.Applied).Msg("template apply stopped")
			return report, fmt.Errorf("apply %s: %w", date, err)
		default:
			report.add(DateResult{Date: date, Outcome: OutcomeApplied})
		}
	}

	if report.Applied > 0 {
		metrics.IncTemplatesApplied()
	}
	a.logger.Info().Str("vet_id", vetID).Str("template_id", tpl.ID).Str("start", start).Str("end", end).
		Int("applied", report.Applied).Msg("template applied")
	return report, nil
}

// mergeSlots keeps every existing slot and adds the fresh ones that do not
// overlap any of them.
func mergeSlots(existing, fresh []model.ScheduleSlot) []model.ScheduleSlot {
	out := append([]model.ScheduleSlot(nil), existing...)
	for _, n := range fresh {
		clash := false
		for _, e := range existing {
			if slots.SlotsOverlap(e, n) {
				clash = true
				break
			}
		}
		if !clash {
			out = append(out, n)
		}
	}
	model.SortSlots(out)
	return out
}
