// Package settings exposes a vet's scheduling settings and keeps stored
// slot expiries in line when the minimum advance changes.
package settings

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"televet/internal/model"
)

// ErrInvalidAdvance is returned for a minimum advance outside 1..1440 minutes.
var ErrInvalidAdvance = errors.New("Enter a value between 1 and 1440 minutes (or 0.01-24 hours).")

const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

// ParseAdvance converts a value in minutes or hours to whole minutes.
// Fractional hours are rounded to the nearest minute.
func ParseAdvance(value float64, unit string) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, ErrInvalidAdvance
	}

	var minutes int
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case UnitHours, "hour", "h":
		if value > 24 {
			return 0, ErrInvalidAdvance
		}
		minutes = int(math.Round(value * 60))
	case UnitMinutes, "minute", "min", "m", "":
		minutes = int(math.Round(value))
	default:
		return 0, ErrInvalidAdvance
	}
	if err := ValidateMinutes(minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

// ValidateMinutes checks the stored bounds.
func ValidateMinutes(minutes int) error {
	if minutes < model.MinAdvanceMinutesMin || minutes > model.MinAdvanceMinutesMax {
		return ErrInvalidAdvance
	}
	return nil
}

// Repository stores the settings document.
type Repository interface {
	Get(ctx context.Context, vetID string) (model.VetSchedulingSettings, error)
	// Lookup reports whether the vet has a saved value, not just a default.
	Lookup(ctx context.Context, vetID string) (model.VetSchedulingSettings, bool, error)
	Save(ctx context.Context, vetID string, s model.VetSchedulingSettings) error
}

// Recalculator rewrites stored slot expiries for a new minimum advance.
type Recalculator interface {
	RecalculateExpiry(ctx context.Context, vetID string, minAdvance int) (int, error)
}

type Service struct {
	repo   Repository
	recalc Recalculator
	logger *zerolog.Logger
}

func NewService(repo Repository, recalc Recalculator, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{repo: repo, recalc: recalc, logger: logger}
}

// Get returns the vet's settings, defaults included.
func (s *Service) Get(ctx context.Context, vetID string) (model.VetSchedulingSettings, error) {
	return s.repo.Get(ctx, vetID)
}

// Update stores a new minimum advance and recalculates slot expiries.
// Saving the value already stored does nothing. A vet without stored
// settings always gets the value written, so a later change to the
// configured default no longer applies to them.
func (s *Service) Update(ctx context.Context, vetID string, minutes int) (model.VetSchedulingSettings, error) {
	if err := ValidateMinutes(minutes); err != nil {
		return model.VetSchedulingSettings{}, err
	}
	current, stored, err := s.repo.Lookup(ctx, vetID)
	if err != nil {
		return model.VetSchedulingSettings{}, err
	}
	unchanged := current.MinAdvanceBookingMinutes == minutes
	if stored && unchanged {
		return current, nil
	}

	next := model.VetSchedulingSettings{MinAdvanceBookingMinutes: minutes}
	if err := s.repo.Save(ctx, vetID, next); err != nil {
		return model.VetSchedulingSettings{}, err
	}
	s.logger.Info().Str("vet_id", vetID).Int("from", current.MinAdvanceBookingMinutes).Int("to", minutes).Msg("minimum advance changed")

	if s.recalc != nil && !unchanged {
		if _, err := s.recalc.RecalculateExpiry(ctx, vetID, minutes); err != nil {
			return next, err
		}
	}
	return next, nil
}
