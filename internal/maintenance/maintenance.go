// Package maintenance keeps persisted slot state current: it flips passed
// slots to expired, recomputes expiries after a policy change and purges
// expired slots on request.
package maintenance

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

// Maintainer runs the maintenance jobs for any vet.
type Maintainer struct {
	schedules *repository.ScheduleRepository
	now       func() time.Time
	logger    *zerolog.Logger
}

// New builds a Maintainer. now must return times in the vet's zone.
func New(schedules *repository.ScheduleRepository, now func() time.Time, logger *zerolog.Logger) *Maintainer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Maintainer{schedules: schedules, now: now, logger: logger}
}

// Sweep marks every available slot whose expiry has passed as expired,
// writing each affected date once. It returns the number of slots flipped.
func (m *Maintainer) Sweep(ctx context.Context, vetID string) (int, error) {
	days, err := m.schedules.List(ctx, vetID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	total := 0
	for _, day := range days {
		if day.Blocked || !hasPassedAvailable(day, now) {
			continue
		}
		var flipped int
		err := m.schedules.Update(ctx, vetID, day.Date, func(d *model.DaySchedule, exists bool) (bool, error) {
			flipped = 0
			if !exists || d.Blocked {
				return false, errUnchanged
			}
			for i, s := range d.Slots {
				if s.Status == model.StatusAvailable && slots.IsExpired(s, now) {
					d.Slots[i].Status = model.StatusExpired
					flipped++
				}
			}
			if flipped == 0 {
				return false, errUnchanged
			}
			return false, nil
		})
		if errors.Is(err, errUnchanged) {
			continue
		}
		if err != nil {
			return total, err
		}
		total += flipped
	}

	if total > 0 {
		metrics.AddSlotsExpired(total)
		m.logger.Info().Str("vet_id", vetID).Int("slots", total).Msg("expired slots marked")
	}
	return total, nil
}

// NextExpiry loads the vet's schedules and returns the soonest future expiry.
func (m *Maintainer) NextExpiry(ctx context.Context, vetID string) (time.Time, bool, error) {
	days, err := m.schedules.List(ctx, vetID)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := slots.NextExpiry(days, m.now())
	return next, ok, nil
}

// RecalculateExpiry recomputes the expiry of every unbooked slot dated
// today or later from minAdvance. Only dates whose values change are
// rewritten; the count of rewritten dates is returned.
func (m *Maintainer) RecalculateExpiry(ctx context.Context, vetID string, minAdvance int) (int, error) {
	days, err := m.schedules.List(ctx, vetID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	today := slots.DateKey(now)
	loc := now.Location()
	rewritten := 0
	for _, day := range days {
		if day.Blocked || day.Date < today {
			continue
		}
		err := m.schedules.Update(ctx, vetID, day.Date, func(d *model.DaySchedule, exists bool) (bool, error) {
			if !exists || d.Blocked {
				return false, errUnchanged
			}
			changed := false
			for i, s := range d.Slots {
				if s.IsBooked() {
					continue
				}
				expiry := slots.ComputeExpiry(d.Date, s.Start, minAdvance, loc)
				if expiry != s.ExpiryTime {
					d.Slots[i].ExpiryTime = expiry
					changed = true
				}
			}
			if !changed {
				return false, errUnchanged
			}
			return false, nil
		})
		if errors.Is(err, errUnchanged) {
			continue
		}
		if err != nil {
			return rewritten, err
		}
		rewritten++
	}

	m.logger.Info().Str("vet_id", vetID).Int("min_advance", minAdvance).Int("dates", rewritten).Msg("slot expiry recalculated")
	return rewritten, nil
}

// PurgeExpired removes unbooked slots that are expired by status or by
// expiry time. A date left without slots is deleted. A failure on one date
// is logged and the purge moves on; all failures are joined into the
// returned error.
func (m *Maintainer) PurgeExpired(ctx context.Context, vetID string) (int, error) {
	days, err := m.schedules.List(ctx, vetID)
	if err != nil {
		return 0, err
	}

	now := m.now()
	removed := 0
	var errs []error
	for _, day := range days {
		if day.Blocked {
			continue
		}
		var dropped int
		err := m.schedules.Update(ctx, vetID, day.Date, func(d *model.DaySchedule, exists bool) (bool, error) {
			dropped = 0
			if !exists || d.Blocked {
				return false, errUnchanged
			}
			kept := d.Slots[:0:0]
			for _, s := range d.Slots {
				if !s.IsBooked() && slots.IsExpired(s, now) {
					dropped++
					continue
				}
				kept = append(kept, s)
			}
			if dropped == 0 {
				return false, errUnchanged
			}
			d.Slots = kept
			return len(kept) == 0, nil
		})
		if errors.Is(err, errUnchanged) {
			continue
		}
		if err != nil {
			m.logger.Error().Err(err).Str("vet_id", vetID).Str("date", day.Date).Msg("purge failed for date")
			errs = append(errs, fmt.Errorf("purge %s: %w", day.Date, err))
			continue
		}
		removed += dropped
	}

	if removed > 0 {
		metrics.AddSlotsPurged(removed)
		m.logger.Info().Str("vet_id", vetID).Int("slots", removed).Msg("expired slots purged")
	}
	return removed, errors.Join(errs...)
}

// errUnchanged aborts a schedule update that has nothing to write.
var errUnchanged = errors.New("schedule unchanged")

func hasPassedAvailable(day model.DaySchedule, now time.Time) bool {
	for _, s := range day.Slots {
		if s.Status == model.StatusAvailable && slots.IsExpired(s, now) {
			return true
		}
	}
	return false
}
