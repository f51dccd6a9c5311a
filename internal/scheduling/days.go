package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/slots"
	"televet/internal/templates"
)

// Days holds the per-date operations a vet performs by hand.
type Days struct {
	schedules *repository.ScheduleRepository
	settings  SettingsReader
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewDays(schedules *repository.ScheduleRepository, settings SettingsReader, now func() time.Time, logger *zerolog.Logger) *Days {
	return &Days{schedules: schedules, settings: settings, now: now, logger: logger}
}

var errNoChange = errors.New("no change")

// BlockDates marks each date as unavailable, replacing its slots. Dates are
// processed in the given order and the first date holding a booking stops
// the run with ErrDateHasBookings.
func (d *Days) BlockDates(ctx context.Context, vetID string, dates []string) error {
	loc := d.now().Location()
	for _, date := range dates {
		if _, err := slots.ParseDateKey(date, loc); err != nil {
			return err
		}
		err := d.schedules.Update(ctx, vetID, date, func(day *model.DaySchedule, _ bool) (bool, error) {
			if day.HasBookings() {
				return false, fmt.Errorf("%s: %w", slots.FormatDate(date), ErrDateHasBookings)
			}
			day.Blocked = true
			day.Slots = nil
			return false, nil
		})
		if err != nil {
			return err
		}
	}
	d.logger.Info().Str("vet_id", vetID).Strs("dates", dates).Msg("dates blocked")
	return nil
}

// UnblockDate clears a blocked date so templates can fill it again. A date
// that is not blocked is left alone.
func (d *Days) UnblockDate(ctx context.Context, vetID, date string) error {
	err := d.schedules.Update(ctx, vetID, date, func(day *model.DaySchedule, exists bool) (bool, error) {
		if !exists || !day.Blocked {
			return false, errNoChange
		}
		return true, nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	d.logger.Info().Str("vet_id", vetID).Str("date", date).Msg("date unblocked")
	return nil
}

// BlockedDates lists blocked dates in ascending order.
func (d *Days) BlockedDates(ctx context.Context, vetID string) ([]string, error) {
	days, err := d.schedules.List(ctx, vetID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, day := range days {
		if day.Blocked {
			out = append(out, day.Date)
		}
	}
	return out, nil
}

// EditResult reports the outcome of EditDay.
type EditResult struct {
	Day     model.DaySchedule `json:"day"`
	Dropped int               `json:"dropped"`
	Removed bool              `json:"removed"`
}

// EditDay replaces the slots of one date. Slots matching a stored one by
// start and end keep its state; booked slots must be submitted unchanged.
// Unbooked slots that are expired or past the cutoff are dropped. An empty
// submission deletes the date record.
func (d *Days) EditDay(ctx context.Context, vetID, date string, input []model.TemplateSlot) (EditResult, error) {
	now := d.now()
	loc := now.Location()
	if _, err := slots.ParseDateKey(date, loc); err != nil {
		return EditResult{}, err
	}
	cleaned, err := templates.CheckSlots(input)
	if err != nil {
		return EditResult{}, err
	}
	settings, err := d.settings.Get(ctx, vetID)
	if err != nil {
		return EditResult{}, err
	}
	minAdvance := settings.MinAdvance()

	var (
		res      EditResult
		rejected error
	)
	err = d.schedules.Update(ctx, vetID, date, func(day *model.DaySchedule, _ bool) (bool, error) {
		res, rejected = EditResult{}, nil
		if day.Blocked {
			rejected = ErrDateBlocked
			return false, rejected
		}

		kept := make(map[string]bool)
		out := make([]model.ScheduleSlot, 0, len(cleaned))
		for _, in := range cleaned {
			slot := model.ScheduleSlot{Start: in.Start, End: in.End, Status: model.StatusAvailable}
			if i := day.FindSlot(in.Start); i >= 0 && day.Slots[i].End == in.End {
				slot = day.Slots[i]
				kept[in.Start] = true
			}
			if slot.IsBooked() {
				out = append(out, slot)
				continue
			}
			slot.ExpiryTime = slots.ComputeExpiry(date, slot.Start, minAdvance, loc)
			if slots.IsExpired(slot, now) || slots.IsPastCutoff(date, slot.Start, minAdvance, now) {
				res.Dropped++
				continue
			}
			out = append(out, slot)
		}
		for _, s := range day.Slots {
			if s.IsBooked() && !kept[s.Start] {
				rejected = fmt.Errorf("%s at %s: %w", slots.FormatDate(date), slots.Format12h(s.Start), ErrBookedSlotRemoved)
				return false, rejected
			}
		}

		if len(out) == 0 {
			if res.Dropped > 0 {
				rejected = &CutoffError{MinAdvance: minAdvance}
				return false, rejected
			}
			res.Removed = true
			res.Day = model.DaySchedule{Date: date}
			return true, nil
		}
		day.Slots = out
		model.SortSlots(day.Slots)
		res.Day = *day
		return false, nil
	})
	if rejected != nil {
		return EditResult{}, rejected
	}
	if err != nil {
		return EditResult{}, err
	}

	d.logger.Info().Str("vet_id", vetID).Str("date", date).Int("slots", len(res.Day.Slots)).
		Int("dropped", res.Dropped).Bool("removed", res.Removed).Msg("day edited")
	return res, nil
}

type FilterMode string

const (
	FilterAll   FilterMode = "all"
	FilterToday FilterMode = "today"
	FilterDate  FilterMode = "date"
	FilterRange FilterMode = "range"
)

// Filter selects schedules for display. Date is used by FilterDate;
// From and To bound FilterRange inclusively.
type Filter struct {
	Mode FilterMode
	Date string
	From string
	To   string
}

// Schedules returns the vet's schedules matching f, ordered by date, with
// missing expiries filled in from the current policy.
func (d *Days) Schedules(ctx context.Context, vetID string, f Filter) ([]model.DaySchedule, error) {
	days, err := d.schedules.List(ctx, vetID)
	if err != nil {
		return nil, err
	}
	settings, err := d.settings.Get(ctx, vetID)
	if err != nil {
		return nil, err
	}
	now := d.now()
	today := slots.DateKey(now)

	out := make([]model.DaySchedule, 0, len(days))
	for _, day := range days {
		switch f.Mode {
		case FilterToday:
			if day.Date != today {
				continue
			}
		case FilterDate:
			if day.Date != f.Date {
				continue
			}
		case FilterRange:
			if day.Date < f.From || day.Date > f.To {
				continue
			}
		}
		slots.EnsureDayExpiry(&day, settings.MinAdvance(), now.Location())
		out = append(out, day)
	}
	return out, nil
}
